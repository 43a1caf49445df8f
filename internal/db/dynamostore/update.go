package dynamostore

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"sort"
	"strings"
)

// update собирает UpdateExpression вместе с подстановками имён и значений.
type update struct {
	set    []string
	remove []string
	cond   []string
	names  map[string]string
	values map[string]types.AttributeValue
}

func newUpdate() *update {
	return &update{names: map[string]string{}, values: map[string]types.AttributeValue{}}
}

func (u *update) name(col string) string {
	ph := "#" + col
	u.names[ph] = col
	return ph
}

func (u *update) value(key string, v interface{}) (string, error) {
	av, err := attributevalue.Marshal(v)
	if err != nil {
		return "", err
	}
	ph := ":" + key
	u.values[ph] = av
	return ph, nil
}

// Set: SET col = v; пустая строка превращается в REMOVE.
func (u *update) Set(col string, v interface{}) error {
	if s, ok := v.(string); ok && s == "" {
		u.Remove(col)
		return nil
	}
	ph, err := u.value("v_"+col, v)
	if err != nil {
		return err
	}
	u.set = append(u.set, u.name(col)+" = "+ph)
	return nil
}

// SetColumns применяет карту колонок в стабильном порядке.
func (u *update) SetColumns(cols map[string]interface{}) error {
	keys := make([]string, 0, len(cols))
	for k := range cols {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := u.Set(k, cols[k]); err != nil {
			return err
		}
	}
	return nil
}

func (u *update) Remove(col string) {
	u.remove = append(u.remove, u.name(col))
}

// Expect добавляет условие col = v.
func (u *update) Expect(col string, v interface{}) error {
	ph, err := u.value("c_"+col, v)
	if err != nil {
		return err
	}
	u.cond = append(u.cond, u.name(col)+" = "+ph)
	return nil
}

// Exists добавляет условие attribute_exists(col).
func (u *update) Exists(col string) {
	u.cond = append(u.cond, "attribute_exists("+u.name(col)+")")
}

func (u *update) Expression() *string {
	var parts []string
	if len(u.set) > 0 {
		parts = append(parts, "SET "+strings.Join(u.set, ", "))
	}
	if len(u.remove) > 0 {
		parts = append(parts, "REMOVE "+strings.Join(u.remove, ", "))
	}
	return aws.String(strings.Join(parts, " "))
}

func (u *update) Condition() *string {
	if len(u.cond) == 0 {
		return nil
	}
	return aws.String(strings.Join(u.cond, " AND "))
}

func (u *update) Names() map[string]string {
	if len(u.names) == 0 {
		return nil
	}
	return u.names
}

func (u *update) Values() map[string]types.AttributeValue {
	if len(u.values) == 0 {
		return nil
	}
	return u.values
}
