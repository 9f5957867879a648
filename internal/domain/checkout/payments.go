package checkout

import "strings"

// paymentProviders maps an ISO currency to the providers that can charge
// it. The lookup is static and side-effect free; the engine only prepares
// the amount to be charged.
var paymentProviders = map[string][]string{
	"usd": {"stripe", "paypal", "applepay"},
	"eur": {"stripe", "paypal", "klarna"},
	"gbp": {"stripe", "paypal", "klarna"},
	"cad": {"stripe", "paypal"},
	"aud": {"stripe", "paypal"},
	"jpy": {"stripe", "konbini"},
	"brl": {"stripe", "pix"},
}

// PaymentProviderHints returns the providers able to charge the given
// currency. Unknown currencies fall back to the card provider.
func PaymentProviderHints(currency string) []string {
	if providers, ok := paymentProviders[strings.ToLower(currency)]; ok {
		hints := make([]string, len(providers))
		copy(hints, providers)
		return hints
	}
	return []string{"stripe"}
}
