package payments

// Config carries the provider credentials and redirect targets. It is
// built once at process start and treated as immutable; components get
// it by value instead of reaching for process-wide state.
type Config struct {
	// ProviderAPIURL is the base URL of the payment provider's API.
	ProviderAPIURL string
	// ProviderAPIKey authenticates outbound calls to the provider.
	ProviderAPIKey string
	// WebhookSecret is the shared secret the provider signs callback
	// bodies with. Known only to this service and the provider.
	WebhookSecret string
	// FrontendBaseURL is where the provider redirects the customer
	// after checkout; fixed path suffixes are appended to it.
	FrontendBaseURL string
	// Currency is the default ISO currency code for sessions that do
	// not specify one.
	Currency string
	// ProviderName labels ledger rows with the source system.
	ProviderName string
}
