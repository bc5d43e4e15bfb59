package services

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"
)

const connectionTimeout = 10 * time.Second

// ConnectionTestResult reports the outcome of a connection test
type ConnectionTestResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// buildAddress builds a host:port address string
func buildAddress(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}

// TestIMAPConnection probes an IMAP server with a raw greeting and LOGIN
// exchange, routed through the proxy when one is given. Used by the account
// form's "test connection" button before credentials are saved.
func TestIMAPConnection(host string, port int, username, password string, useSSL bool, proxyURL string) ConnectionTestResult {
	addr := buildAddress(host, port)

	conn, err := DialThroughProxy(proxyURL, "tcp", addr, connectionTimeout)
	if err != nil {
		return ConnectionTestResult{
			Success: false,
			Message: fmt.Sprintf("Failed to connect to IMAP server: %v", err),
		}
	}
	defer conn.Close()

	if useSSL {
		tlsConn := tls.Client(conn, &tls.Config{ServerName: host})
		tlsConn.SetDeadline(time.Now().Add(connectionTimeout))
		if err := tlsConn.Handshake(); err != nil {
			return ConnectionTestResult{
				Success: false,
				Message: fmt.Sprintf("TLS handshake failed: %v", err),
			}
		}
		tlsConn.SetDeadline(time.Time{})
		conn = net.Conn(tlsConn)
	}

	conn.SetReadDeadline(time.Now().Add(connectionTimeout))

	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	if err != nil {
		return ConnectionTestResult{
			Success: false,
			Message: fmt.Sprintf("Failed to read IMAP greeting: %v", err),
		}
	}

	greeting := string(buf[:n])
	if len(greeting) < 4 || greeting[:4] != "* OK" {
		return ConnectionTestResult{
			Success: false,
			Message: "Invalid IMAP server response",
		}
	}

	loginCmd := fmt.Sprintf("A001 LOGIN %q %q\r\n", username, password)
	if _, err := conn.Write([]byte(loginCmd)); err != nil {
		return ConnectionTestResult{
			Success: false,
			Message: fmt.Sprintf("Failed to send login command: %v", err),
		}
	}

	conn.SetReadDeadline(time.Now().Add(connectionTimeout))
	n, err = conn.Read(buf)
	if err != nil {
		return ConnectionTestResult{
			Success: false,
			Message: fmt.Sprintf("Failed to read login response: %v", err),
		}
	}

	response := string(buf[:n])
	if len(response) >= 7 && response[:7] == "A001 OK" {
		conn.Write([]byte("A002 LOGOUT\r\n"))
		return ConnectionTestResult{
			Success: true,
			Message: "IMAP connection and authentication successful",
		}
	}

	return ConnectionTestResult{
		Success: false,
		Message: "IMAP authentication failed: " + response,
	}
}
