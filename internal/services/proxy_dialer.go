package services

import (
	"bufio"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

// NewProxyDialer builds a dialer that routes connections through the proxy
// described by proxyURL. Supported schemes: socks5, socks5h, socks4, http,
// https. Credentials are taken from the URL userinfo; net/url already
// percent-decodes them, so "user%40host" arrives here as "user@host".
func NewProxyDialer(proxyURL string) (proxy.Dialer, error) {
	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid proxy URL: %v", ErrConnection, err)
	}

	switch u.Scheme {
	case "socks5", "socks5h":
		d, err := proxy.FromURL(u, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConnection, err)
		}
		return d, nil
	case "socks4":
		return &socks4Dialer{proxyAddr: u.Host, userID: u.User.Username()}, nil
	case "http", "https":
		return newHTTPProxyDialer(u), nil
	default:
		return nil, fmt.Errorf("%w: unsupported proxy scheme %q", ErrConnection, u.Scheme)
	}
}

// DialThroughProxy dials addr, through proxyURL when it is non-empty and
// directly otherwise.
func DialThroughProxy(proxyURL, network, addr string, timeout time.Duration) (net.Conn, error) {
	if proxyURL == "" {
		conn, err := net.DialTimeout(network, addr, timeout)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConnection, err)
		}
		return conn, nil
	}

	dialer, err := NewProxyDialer(proxyURL)
	if err != nil {
		return nil, err
	}
	conn, err := dialer.Dial(network, addr)
	if err != nil {
		return nil, fmt.Errorf("%w: proxy dial failed: %v", ErrConnection, err)
	}
	return conn, nil
}

// socks4Dialer implements the SOCKS4 CONNECT handshake. x/net/proxy only
// speaks SOCKS5, and SOCKS4 is still common on legacy corporate proxies.
type socks4Dialer struct {
	proxyAddr string
	userID    string
}

func (d *socks4Dialer) Dial(network, addr string) (net.Conn, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, err
	}

	// SOCKS4 carries a raw IPv4 address, so resolve locally
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, err
	}
	var ip4 net.IP
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			ip4 = v4
			break
		}
	}
	if ip4 == nil {
		return nil, fmt.Errorf("no IPv4 address for %s", host)
	}

	conn, err := net.DialTimeout("tcp", d.proxyAddr, 30*time.Second)
	if err != nil {
		return nil, err
	}

	req := make([]byte, 0, 9+len(d.userID))
	req = append(req, 0x04, 0x01) // version 4, CONNECT
	req = binary.BigEndian.AppendUint16(req, uint16(port))
	req = append(req, ip4...)
	req = append(req, []byte(d.userID)...)
	req = append(req, 0x00)

	if _, err := conn.Write(req); err != nil {
		conn.Close()
		return nil, err
	}

	resp := make([]byte, 8)
	if _, err := readFull(conn, resp); err != nil {
		conn.Close()
		return nil, err
	}
	if resp[1] != 0x5a {
		conn.Close()
		return nil, fmt.Errorf("SOCKS4 request rejected (code 0x%02x)", resp[1])
	}
	return conn, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// httpProxyDialer tunnels TCP through an HTTP proxy with CONNECT
type httpProxyDialer struct {
	proxyAddr string
	auth      string // Proxy-Authorization header value, "" when no credentials
}

func newHTTPProxyDialer(u *url.URL) *httpProxyDialer {
	host := u.Host
	if u.Port() == "" {
		if u.Scheme == "https" {
			host = net.JoinHostPort(u.Hostname(), "443")
		} else {
			host = net.JoinHostPort(u.Hostname(), "80")
		}
	}

	auth := ""
	if u.User != nil {
		password, _ := u.User.Password()
		cred := u.User.Username() + ":" + password
		auth = "Basic " + base64.StdEncoding.EncodeToString([]byte(cred))
	}
	return &httpProxyDialer{proxyAddr: host, auth: auth}
}

func (d *httpProxyDialer) Dial(network, addr string) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", d.proxyAddr, 30*time.Second)
	if err != nil {
		return nil, err
	}

	req := fmt.Sprintf("CONNECT %s HTTP/1.1\r\nHost: %s\r\n", addr, addr)
	if d.auth != "" {
		req += "Proxy-Authorization: " + d.auth + "\r\n"
	}
	req += "\r\n"

	if _, err := conn.Write([]byte(req)); err != nil {
		conn.Close()
		return nil, err
	}

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, &http.Request{Method: http.MethodConnect})
	if err != nil {
		conn.Close()
		return nil, err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		conn.Close()
		return nil, fmt.Errorf("proxy CONNECT returned %s", resp.Status)
	}
	return conn, nil
}

// NewProxyHTTPClient returns an http.Client that routes through proxyURL,
// or a plain client when proxyURL is empty.
func NewProxyHTTPClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	if proxyURL == "" {
		return &http.Client{Timeout: timeout}, nil
	}

	dialer, err := NewProxyDialer(proxyURL)
	if err != nil {
		return nil, err
	}

	transport := &http.Transport{
		Dial: dialer.Dial,
	}
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}
