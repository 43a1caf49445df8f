package bot

import (
	"errors"
	"github.com/shopspring/decimal"
	"sort"
	"strings"
)

// Callback data имеет вид "<действие>" или "<префикс><аргумент>", как у существующих кнопок бота.
const (
	cbClient           = "client"
	cbExecutor         = "entrepreneur"
	cbCreateOrder      = "create_order"
	cbConsultation     = "consultation"
	cbClientLogin      = "client_login"
	cbClientRegister   = "client_register"
	cbClientLogout     = "client_logout"
	cbClientOrders     = "my_client_orders"
	cbExecutorLogin    = "login"
	cbExecutorLogout   = "logout"
	cbExecutorOrders   = "my_orders"
	cbWithdraw         = "withdraw"
	cbExitChat         = "exit_chat"
	cbOurWorks         = "our_works"
	cbCategorySites    = "category_sites"
	cbCategoryVideo    = "category_video"
	cbBackToSites      = "back_to_sites"
	cbBackToVideo      = "back_to_video"
	cbBackToOurWorks   = "back_to_our_works"
	cbBackToMainMenu   = "main_menu"
	pfxAcceptOrder     = "accept_order_"
	pfxDeclineOrder    = "decline_order_"
	pfxCancelOrder     = "cancel_order_"
	pfxPaymentConfirm  = "payment_confirm_"
	pfxPaymentHelp     = "payment_help_"
	pfxBackToPayment   = "back_to_payment_"
	pfxPaymentNew      = "payment_new_"
	pfxStartWork       = "start_work_"
	pfxDeclinePaid     = "decline_paid_order_"
	pfxSubmitWork      = "submit_work_"
	pfxAcceptWork      = "accept_work_"
	pfxRequestRevision = "request_revision_"
	pfxOpenDispute     = "open_dispute_"
	pfxClientChat      = "open_client_chat_"
	pfxExecutorChat    = "open_contractor_chat_"
	pfxChatHistory     = "chat_history_"
	pfxWithdrawAmount  = "withdraw_amount_"
	pfxPortfolioItem   = "portfolio_item_"
	pfxSubcategory     = "subcategory_"
)

func data(prefix, arg string) string {
	return prefix + arg
}

type handlerFunc func(b *Bot, c *callback, arg string) error

// router сопоставляет callback data обработчику: сначала точное совпадение,
// затем самый длинный подходящий префикс.
type router struct {
	exact    map[string]handlerFunc
	prefixes []string
	byPrefix map[string]handlerFunc
}

func newRouter() *router {
	return &router{exact: map[string]handlerFunc{}, byPrefix: map[string]handlerFunc{}}
}

func (r *router) on(action string, h handlerFunc) {
	r.exact[action] = h
}

func (r *router) onPrefix(prefix string, h handlerFunc) {
	r.byPrefix[prefix] = h
	r.prefixes = append(r.prefixes, prefix)
	sort.Slice(r.prefixes, func(i, j int) bool { return len(r.prefixes[i]) > len(r.prefixes[j]) })
}

// match возвращает обработчик и аргумент. ok == false для неизвестной кнопки.
func (r *router) match(data string) (h handlerFunc, arg string, ok bool) {
	if h, ok := r.exact[data]; ok {
		return h, "", true
	}
	for _, p := range r.prefixes {
		if strings.HasPrefix(data, p) {
			arg = strings.TrimPrefix(data, p)
			if arg == "" {
				return nil, "", false
			}
			return r.byPrefix[p], arg, true
		}
	}
	return nil, "", false
}

var errBadCallback = errors.New("malformed callback data")

// withdrawArg кодирует "<login>_<amount>". Логин может содержать '_', сумма не может.
func withdrawArg(login string, amount decimal.Decimal) string {
	return login + "_" + amount.StringFixed(2)
}

func parseWithdrawArg(arg string) (string, decimal.Decimal, error) {
	i := strings.LastIndex(arg, "_")
	if i <= 0 || i == len(arg)-1 {
		return "", decimal.Zero, errBadCallback
	}
	amount, err := decimal.NewFromString(arg[i+1:])
	if err != nil {
		return "", decimal.Zero, errBadCallback
	}
	return arg[:i], amount, nil
}
