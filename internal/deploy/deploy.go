// Package deploy moves the external tuner's plain-text tune file to and
// from a remote FPGA control host over SSH, grounded on
// internal/host/deployment.go's ssh.ClientConfig/ssh.Dial idiom. It only
// moves bytes — tune-file format and interpretation belong to the
// external tuner (spec §6.3).
package deploy

import (
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/crypto/ssh"
)

// Target names the remote host a tune file is synced against.
type Target struct {
	Host    string
	User    string
	KeyPath string // path to a private key; required, an empty path makes dial fail
	Timeout time.Duration
}

func (t Target) dialTimeout() time.Duration {
	if t.Timeout > 0 {
		return t.Timeout
	}
	return 30 * time.Second
}

func (t Target) addr() string {
	if t.Host == "" {
		return ""
	}
	return t.Host + ":22"
}

func (t Target) clientConfig() (*ssh.ClientConfig, error) {
	auth, err := t.authMethod()
	if err != nil {
		return nil, err
	}
	return &ssh.ClientConfig{
		User:            t.User,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         t.dialTimeout(),
		HostKeyAlgorithms: []string{
			"ssh-rsa",
			"ssh-ed25519",
		},
	}, nil
}

func (t Target) authMethod() (ssh.AuthMethod, error) {
	if t.KeyPath == "" {
		return nil, fmt.Errorf("deploy: no key path configured for %s", t.Host)
	}
	key, err := os.ReadFile(t.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("deploy: read key %s: %w", t.KeyPath, err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("deploy: parse key %s: %w", t.KeyPath, err)
	}
	return ssh.PublicKeys(signer), nil
}

// PushTuneFile copies the local tune file at localPath up to remotePath
// on t, overwriting whatever is already there.
func PushTuneFile(t Target, localPath, remotePath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("deploy: read local tune file: %w", err)
	}

	client, err := dial(t)
	if err != nil {
		return err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("deploy: new session: %w", err)
	}
	defer session.Close()

	stdin, err := session.StdinPipe()
	if err != nil {
		return fmt.Errorf("deploy: stdin pipe: %w", err)
	}

	cmd := fmt.Sprintf("cat > %s", shellQuote(remotePath))
	if err := session.Start(cmd); err != nil {
		return fmt.Errorf("deploy: start remote write: %w", err)
	}
	if _, err := stdin.Write(data); err != nil {
		stdin.Close()
		return fmt.Errorf("deploy: write tune file payload: %w", err)
	}
	stdin.Close()

	if err := session.Wait(); err != nil {
		return fmt.Errorf("deploy: remote write failed: %w", err)
	}
	return nil
}

// PullTuneFile copies the remote tune file at remotePath on t down to
// localPath, overwriting whatever is already there.
func PullTuneFile(t Target, remotePath, localPath string) error {
	client, err := dial(t)
	if err != nil {
		return err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("deploy: new session: %w", err)
	}
	defer session.Close()

	stdout, err := session.StdoutPipe()
	if err != nil {
		return fmt.Errorf("deploy: stdout pipe: %w", err)
	}

	cmd := fmt.Sprintf("cat %s", shellQuote(remotePath))
	if err := session.Start(cmd); err != nil {
		return fmt.Errorf("deploy: start remote read: %w", err)
	}

	data, err := io.ReadAll(stdout)
	if err != nil {
		return fmt.Errorf("deploy: read remote tune file: %w", err)
	}
	if err := session.Wait(); err != nil {
		return fmt.Errorf("deploy: remote read failed: %w", err)
	}

	if err := os.WriteFile(localPath, data, 0644); err != nil {
		return fmt.Errorf("deploy: write local tune file: %w", err)
	}
	return nil
}

func dial(t Target) (*ssh.Client, error) {
	if t.Host == "" {
		return nil, fmt.Errorf("deploy: no target host configured")
	}
	cfg, err := t.clientConfig()
	if err != nil {
		return nil, err
	}
	client, err := ssh.Dial("tcp", t.addr(), cfg)
	if err != nil {
		return nil, fmt.Errorf("deploy: dial %s: %w", t.addr(), err)
	}
	return client, nil
}

func shellQuote(path string) string {
	return "'" + path + "'"
}
