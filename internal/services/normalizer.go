package services

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/mail"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
)

// Field limits applied before persisting a message
const (
	maxSubjectLen     = 255
	maxFromNameLen    = 100
	maxFromAddressLen = 255
	maxToAddressesLen = 1000
	maxBodyTextLen    = 5000
	maxBodyHTMLLen    = 10000
)

func init() {
	// go-message decodes body charsets through this hook
	message.CharsetReader = charset.Reader
}

// FetchedMessage is the provider-agnostic form every adapter produces.
// SyncService persists these without knowing which protocol they came from.
type FetchedMessage struct {
	UID         string
	MessageID   string
	Subject     string
	FromName    string
	FromAddress string
	ToAddresses string
	BodyText    string
	BodyHTML    string
	IsRead      bool
	ReceivedAt  time.Time
}

// DedupKey returns the identity used for cross-folder deduplication: the
// RFC 5322 Message-ID when present, otherwise a synthetic key from the
// account and provider-local UID.
func (m *FetchedMessage) DedupKey(accountID uint) string {
	if m.MessageID != "" {
		return m.MessageID
	}
	return fmt.Sprintf("%d-%s", accountID, m.UID)
}

// Truncate clamps every field to its storage limit
func (m *FetchedMessage) Truncate() {
	m.Subject = truncate(m.Subject, maxSubjectLen)
	m.FromName = truncate(m.FromName, maxFromNameLen)
	m.FromAddress = truncate(m.FromAddress, maxFromAddressLen)
	m.ToAddresses = truncate(m.ToAddresses, maxToAddressesLen)
	m.BodyText = truncate(m.BodyText, maxBodyTextLen)
	m.BodyHTML = truncate(m.BodyHTML, maxBodyHTMLLen)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	// Cut on a rune boundary so multibyte subjects stay valid UTF-8
	cut := limit
	for cut > 0 && (s[cut]&0xC0) == 0x80 {
		cut--
	}
	return s[:cut]
}

// decodeMIMEHeader decodes RFC 2047 encoded-words, falling back to the raw
// string when the charset is unknown
func decodeMIMEHeader(s string) string {
	decoder := mime.WordDecoder{
		CharsetReader: func(cs string, input io.Reader) (io.Reader, error) {
			return charset.Reader(cs, input)
		},
	}
	decoded, err := decoder.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}

// ParseRawMessage normalizes one raw RFC 5322 message into a FetchedMessage.
// Undecodable messages return ErrParse; callers skip them and keep syncing.
func ParseRawMessage(raw []byte, uid string) (*FetchedMessage, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if entity == nil {
		return nil, fmt.Errorf("%w: empty message", ErrParse)
	}

	msg := &FetchedMessage{
		UID:       uid,
		MessageID: strings.Trim(entity.Header.Get("Message-Id"), "<> "),
		Subject:   decodeMIMEHeader(entity.Header.Get("Subject")),
	}

	if from := entity.Header.Get("From"); from != "" {
		if addrs, err := mail.ParseAddressList(decodeMIMEHeader(from)); err == nil && len(addrs) > 0 {
			msg.FromName = addrs[0].Name
			msg.FromAddress = addrs[0].Address
		} else {
			msg.FromAddress = from
		}
	}

	if to := entity.Header.Get("To"); to != "" {
		if addrs, err := mail.ParseAddressList(decodeMIMEHeader(to)); err == nil {
			parts := make([]string, 0, len(addrs))
			for _, a := range addrs {
				parts = append(parts, a.Address)
			}
			msg.ToAddresses = strings.Join(parts, ", ")
		} else {
			msg.ToAddresses = to
		}
	}

	if date := entity.Header.Get("Date"); date != "" {
		if t, err := mail.ParseDate(date); err == nil {
			msg.ReceivedAt = t.UTC()
		}
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now().UTC()
	}

	var textBuf, htmlBuf strings.Builder
	collectBodies(entity, &textBuf, &htmlBuf)
	msg.BodyText = strings.TrimSpace(textBuf.String())
	msg.BodyHTML = strings.TrimSpace(htmlBuf.String())

	msg.Truncate()
	return msg, nil
}

// collectBodies walks the MIME tree and appends every non-attachment
// text part to the matching accumulator
func collectBodies(entity *message.Entity, textBuf, htmlBuf *strings.Builder) {
	if mr := entity.MultipartReader(); mr != nil {
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				if message.IsUnknownCharset(err) && part != nil {
					collectBodies(part, textBuf, htmlBuf)
					continue
				}
				// A broken part does not invalidate the siblings
				break
			}
			collectBodies(part, textBuf, htmlBuf)
		}
		return
	}

	disposition := strings.ToLower(entity.Header.Get("Content-Disposition"))
	if strings.HasPrefix(disposition, "attachment") {
		return
	}

	mediaType, _, err := entity.Header.ContentType()
	if err != nil {
		mediaType = "text/plain"
	}

	switch mediaType {
	case "text/plain", "":
		appendBody(entity.Body, textBuf)
	case "text/html":
		appendBody(entity.Body, htmlBuf)
	}
}

func appendBody(r io.Reader, buf *strings.Builder) {
	// Only the first few KB of each part can survive truncation anyway
	data, err := io.ReadAll(io.LimitReader(r, 256<<10))
	if err != nil && len(data) == 0 {
		return
	}
	if buf.Len() > 0 {
		buf.WriteString("\n")
	}
	buf.Write(data)
}
