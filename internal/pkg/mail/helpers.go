package mail

import (
	"github.com/clarity-app/core/internal/config"
)

// FromOptions maps the stored mail options onto a sender config, so every
// caller builds the mailer the same way.
func FromOptions(opts config.MailOptions) Config {
	return Config{
		Enable:    opts.Enable,
		Host:      opts.Host,
		Port:      opts.Port,
		User:      opts.User,
		Pass:      opts.Pass,
		From:      opts.From,
		ResendKey: opts.ResendKey,
	}
}
