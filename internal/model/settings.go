package model

// Sender is a from-address shown to recipients.
type Sender struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// AppSettings is stored encrypted as a single JSON document.
type AppSettings struct {
	SMTPHost string `json:"smtpHost"`
	SMTPPort int    `json:"smtpPort"`
	SMTPUser string `json:"smtpUser"`
	SMTPPass string `json:"smtpPass"`

	// Senders maps each FromAddressType to the address mail goes out as.
	Senders map[FromAddressType]Sender `json:"senders"`

	CompanyName  string `json:"companyName"`
	SupportEmail string `json:"supportEmail"`
}

// SenderFor returns the configured sender for f, falling back to the
// transactional sender when f has none.
func (s AppSettings) SenderFor(f FromAddressType) Sender {
	if snd, ok := s.Senders[f]; ok && snd.Address != "" {
		return snd
	}
	return s.Senders[FromTransactional]
}

// Redacted returns a copy safe to send to the browser.
func (s AppSettings) Redacted() AppSettings {
	if s.SMTPPass != "" {
		s.SMTPPass = "********"
	}
	return s
}
