package core

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultStatement is the human-readable statement shown in the wallet prompt.
	DefaultStatement = "Sign in with Ethereum to authenticate with our application."

	// DefaultVersion is the EIP-4361 message version.
	DefaultVersion = "1"

	preambleSuffix = " wants you to sign in with your Ethereum account:"

	fieldURI      = "URI: "
	fieldVersion  = "Version: "
	fieldChainID  = "Chain ID: "
	fieldNonce    = "Nonce: "
	fieldIssuedAt = "Issued At: "
)

// ChallengeMessage is the EIP-4361 message a user signs for one attempt.
type ChallengeMessage struct {
	Domain    string
	Address   Account
	Statement string
	URI       string
	Version   string
	ChainID   int64
	Nonce     string
	IssuedAt  time.Time
}

// Validate checks that every field can be serialised without ambiguity.
func (m ChallengeMessage) Validate() error {
	switch {
	case m.Domain == "" || strings.ContainsAny(m.Domain, " \r\n"):
		return fmt.Errorf("%w: bad domain", ErrInvalidMessage)
	case m.Address == "":
		return fmt.Errorf("%w: missing address", ErrInvalidMessage)
	case strings.ContainsAny(m.Statement, "\r\n"):
		return fmt.Errorf("%w: statement must be a single line", ErrInvalidMessage)
	case m.URI == "" || strings.ContainsAny(m.URI, "\r\n"):
		return fmt.Errorf("%w: bad uri", ErrInvalidMessage)
	case m.Version == "":
		return fmt.Errorf("%w: missing version", ErrInvalidMessage)
	case m.ChainID <= 0:
		return fmt.Errorf("%w: chain id must be positive", ErrInvalidMessage)
	case m.Nonce == "" || strings.ContainsAny(m.Nonce, "\r\n"):
		return fmt.Errorf("%w: bad nonce", ErrInvalidMessage)
	case m.IssuedAt.IsZero():
		return fmt.Errorf("%w: missing issued-at", ErrInvalidMessage)
	}
	return nil
}

// String returns the canonical text that is signed and sent for verification.
func (m ChallengeMessage) String() string {
	var b strings.Builder
	b.WriteString(m.Domain)
	b.WriteString(preambleSuffix)
	b.WriteByte('\n')
	b.WriteString(string(m.Address))
	b.WriteString("\n\n")
	if m.Statement != "" {
		b.WriteString(m.Statement)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.WriteString(fieldURI + m.URI + "\n")
	b.WriteString(fieldVersion + m.Version + "\n")
	b.WriteString(fieldChainID + strconv.FormatInt(m.ChainID, 10) + "\n")
	b.WriteString(fieldNonce + m.Nonce + "\n")
	b.WriteString(fieldIssuedAt + m.IssuedAt.UTC().Format(time.RFC3339))
	return b.String()
}

// ParseChallengeMessage is the inverse of ChallengeMessage.String.
func ParseChallengeMessage(text string) (ChallengeMessage, error) {
	lines := strings.Split(text, "\n")
	if len(lines) < 8 {
		return ChallengeMessage{}, fmt.Errorf("%w: too short", ErrInvalidMessage)
	}

	var m ChallengeMessage
	if !strings.HasSuffix(lines[0], preambleSuffix) {
		return ChallengeMessage{}, fmt.Errorf("%w: missing preamble", ErrInvalidMessage)
	}
	m.Domain = strings.TrimSuffix(lines[0], preambleSuffix)

	account, err := ParseAccount(lines[1])
	if err != nil {
		return ChallengeMessage{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	m.Address = account

	if lines[2] != "" {
		return ChallengeMessage{}, fmt.Errorf("%w: expected blank line after address", ErrInvalidMessage)
	}
	rest := lines[3:]
	if rest[0] != "" {
		if len(rest) < 2 || rest[1] != "" {
			return ChallengeMessage{}, fmt.Errorf("%w: expected blank line after statement", ErrInvalidMessage)
		}
		m.Statement = rest[0]
		rest = rest[2:]
	} else {
		rest = rest[1:]
	}
	if len(rest) != 5 {
		return ChallengeMessage{}, fmt.Errorf("%w: unexpected field count", ErrInvalidMessage)
	}

	fields := []struct {
		prefix string
		value  *string
	}{
		{fieldURI, &m.URI},
		{fieldVersion, &m.Version},
		{fieldChainID, nil},
		{fieldNonce, &m.Nonce},
		{fieldIssuedAt, nil},
	}
	for i, f := range fields {
		v, ok := strings.CutPrefix(rest[i], f.prefix)
		if !ok {
			return ChallengeMessage{}, fmt.Errorf("%w: expected %q", ErrInvalidMessage, strings.TrimSpace(f.prefix))
		}
		switch f.prefix {
		case fieldChainID:
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return ChallengeMessage{}, fmt.Errorf("%w: chain id: %v", ErrInvalidMessage, err)
			}
			m.ChainID = id
		case fieldIssuedAt:
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return ChallengeMessage{}, fmt.Errorf("%w: issued-at: %v", ErrInvalidMessage, err)
			}
			m.IssuedAt = t.UTC()
		default:
			*f.value = v
		}
	}

	if err := m.Validate(); err != nil {
		return ChallengeMessage{}, err
	}
	return m, nil
}

// MessageBuilder holds the relying-party fields that are fixed for the
// lifetime of a client. Build is pure: identical inputs give identical text.
type MessageBuilder struct {
	Domain    string
	URI       string
	Statement string
	Version   string
}

// NewMessageBuilder validates the relying-party origin. An empty statement or
// version falls back to the defaults.
func NewMessageBuilder(domain, uri, statement, version string) (MessageBuilder, error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return MessageBuilder{}, fmt.Errorf("%w: origin uri %q", ErrInvalidMessage, uri)
	}
	if domain == "" {
		domain = u.Host
	}
	if statement == "" {
		statement = DefaultStatement
	}
	if version == "" {
		version = DefaultVersion
	}
	return MessageBuilder{
		Domain:    domain,
		URI:       uri,
		Statement: statement,
		Version:   version,
	}, nil
}

// Build binds account, challenge and chain id into a message. The challenge
// must have been issued for account.
func (b MessageBuilder) Build(account Account, ch Challenge, chainID int64) (ChallengeMessage, error) {
	if ch.Account != account {
		return ChallengeMessage{}, fmt.Errorf("%w: challenge was issued for %s", ErrInvalidMessage, ch.Account)
	}
	m := ChallengeMessage{
		Domain:    b.Domain,
		Address:   account,
		Statement: b.Statement,
		URI:       b.URI,
		Version:   b.Version,
		ChainID:   chainID,
		Nonce:     ch.Nonce,
		IssuedAt:  ch.IssuedAt.UTC(),
	}
	if err := m.Validate(); err != nil {
		return ChallengeMessage{}, err
	}
	return m, nil
}
