package poller

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/skovlund/netwatch/internal/httpclient"
)

// HTTPFetcher retrieves the router log over HTTP GET with optional basic
// auth.
type HTTPFetcher struct {
	client *httpclient.Client
	url    string
}

// NewHTTPFetcher builds an HTTP fetcher. username/password may be empty.
func NewHTTPFetcher(url, username, password string) *HTTPFetcher {
	opts := []httpclient.Option{httpclient.WithTimeout(20 * time.Second)}
	if username != "" || password != "" {
		opts = append(opts, httpclient.WithBasicAuth(username, password))
	}
	return &HTTPFetcher{client: httpclient.New(opts...), url: url}
}

// Fetch returns the current log content.
func (f *HTTPFetcher) Fetch(ctx context.Context) (string, error) {
	body, err := f.client.GetText(ctx, f.url)
	if err != nil {
		return "", fmt.Errorf("router http fetch: %w", err)
	}
	return body, nil
}

// SSHFetcher retrieves the router log by running cat over an authenticated
// SSH session. Each fetch opens a fresh connection; consumer routers drop
// idle sessions aggressively.
type SSHFetcher struct {
	addr    string
	logPath string
	config  *ssh.ClientConfig
}

// NewSSHFetcher builds an SSH fetcher for addr (host:port) with password
// auth. Host keys are not verified: the router is on the local segment and
// rotates its key on factory reset.
func NewSSHFetcher(addr, username, password, logPath string) *SSHFetcher {
	return &SSHFetcher{
		addr:    addr,
		logPath: logPath,
		config: &ssh.ClientConfig{
			User:            username,
			Auth:            []ssh.AuthMethod{ssh.Password(password)},
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
			Timeout:         15 * time.Second,
		},
	}
}

// Fetch returns the current log content.
func (f *SSHFetcher) Fetch(ctx context.Context) (string, error) {
	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)

	go func() {
		client, err := ssh.Dial("tcp", f.addr, f.config)
		if err != nil {
			done <- result{nil, fmt.Errorf("router ssh dial: %w", err)}
			return
		}
		defer client.Close()

		session, err := client.NewSession()
		if err != nil {
			done <- result{nil, fmt.Errorf("router ssh session: %w", err)}
			return
		}
		defer session.Close()

		out, err := session.Output("cat " + f.logPath)
		if err != nil {
			done <- result{nil, fmt.Errorf("router ssh cat: %w", err)}
			return
		}
		done <- result{out, nil}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return string(r.out), r.err
	}
}
