package email

// Config holds the outbound email settings. Without a Postmark server token
// messages are written to OutboxDir instead of being sent.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"SENDER_EMAIL" envDefault:"no-reply@dialbill.local"`
	SupportEmail         string `env:"SUPPORT_EMAIL"`
	OutboxDir            string `env:"EMAIL_OUTBOX_DIR" envDefault:"./var/outbox"`

	ProductName  string `env:"EMAIL_PRODUCT_NAME" envDefault:"Dialbill"`
	DashboardURL string `env:"DASHBOARD_URL"`
}
