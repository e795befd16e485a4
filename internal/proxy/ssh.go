package proxy

import (
	"bytes"
	"fmt"
	"net"
	"time"

	"github.com/gravitational/trace"
	"golang.org/x/crypto/ssh"

	"github.com/passman/vault/internal/vault"
)

// sshInactivityTimeout bounds how long the session waits for the next
// byte on any stream before giving up on a hung remote command. A
// command that keeps producing output may run indefinitely; only
// silence this long is treated as a failure.
const sshInactivityTimeout = 120 * time.Second

// SSHExecOutput is the result of an ssh_exec call.
type SSHExecOutput struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// ExecuteSSH dials host:port, authenticates with the credential, and
// runs command as a single non-interactive exec request. Supported
// credential kinds: SSHKeySecret (publickey), SSHPasswordSecret
// (password), and PasswordSecret as a compatibility fallback (its URL
// field, if set, becomes the host; port defaults to 22).
func ExecuteSSH(secret vault.Secret, command string) (*SSHExecOutput, error) {
	username, host, port, authMethod, err := sshAuthMethod(secret)
	if err != nil {
		return nil, err
	}

	// Host keys are not pinned or checked: any server key is accepted.
	config := &ssh.ClientConfig{
		User:            username,
		Auth:            []ssh.AuthMethod{authMethod},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         30 * time.Second,
	}

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, trace.Wrap(err, "SSH connection failed")
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, trace.Wrap(err, "failed to open SSH channel")
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	done := make(chan error, 1)
	if err := session.Start(command); err != nil {
		return nil, trace.Wrap(err, "failed to exec SSH command")
	}
	go func() { done <- session.Wait() }()

	exitCode, timedOut := waitWithInactivityTimeout(done, &stdoutBuf, &stderrBuf)
	if timedOut {
		stderrBuf.WriteString("\n[passman: SSH command timed out - no output for 120s, output may be partial]")
		session.Signal(ssh.SIGKILL)
	}

	secrets := secret.SecretStrings()
	return &SSHExecOutput{
		ExitCode: exitCode,
		Stdout:   sanitize(stdoutBuf.String(), secrets),
		Stderr:   sanitize(stderrBuf.String(), secrets),
	}, nil
}

// waitWithInactivityTimeout polls the command's completion channel,
// resetting a 120-second deadline every time either output buffer
// grows. It returns -1 and timedOut=true if the deadline is reached
// before the command exits.
func waitWithInactivityTimeout(done <-chan error, stdout, stderr *bytes.Buffer) (exitCode int, timedOut bool) {
	lastLen := stdout.Len() + stderr.Len()
	deadline := time.NewTimer(sshInactivityTimeout)
	defer deadline.Stop()

	poll := time.NewTicker(200 * time.Millisecond)
	defer poll.Stop()

	for {
		select {
		case err := <-done:
			if err == nil {
				return 0, false
			}
			if exitErr, ok := err.(*ssh.ExitError); ok {
				return exitErr.ExitStatus(), false
			}
			return -1, false

		case <-poll.C:
			curLen := stdout.Len() + stderr.Len()
			if curLen != lastLen {
				lastLen = curLen
				if !deadline.Stop() {
					<-deadline.C
				}
				deadline.Reset(sshInactivityTimeout)
			}

		case <-deadline.C:
			return -1, true
		}
	}
}

func sshAuthMethod(secret vault.Secret) (username, host string, port uint16, method ssh.AuthMethod, err error) {
	switch s := secret.(type) {
	case vault.SSHKeySecret:
		signer, perr := parsePrivateKey(s.PrivateKey, s.Passphrase)
		if perr != nil {
			return "", "", 0, nil, perr
		}
		return s.Username, s.Host, s.EffectivePort(), ssh.PublicKeys(signer), nil

	case vault.SSHPasswordSecret:
		return s.Username, s.Host, s.EffectivePort(), ssh.Password(s.Password), nil

	case vault.PasswordSecret:
		host := s.URL
		if host == "" {
			host = "localhost"
		}
		return s.Username, host, 22, ssh.Password(s.Password), nil

	default:
		return "", "", 0, nil, trace.BadParameter("credential type not supported for SSH")
	}
}

func parsePrivateKey(pemKey, passphrase string) (ssh.Signer, error) {
	if passphrase != "" {
		signer, err := ssh.ParsePrivateKeyWithPassphrase([]byte(pemKey), []byte(passphrase))
		if err != nil {
			return nil, trace.BadParameter("failed to decode SSH key: %v", err)
		}
		return signer, nil
	}
	signer, err := ssh.ParsePrivateKey([]byte(pemKey))
	if err != nil {
		return nil, trace.BadParameter("failed to decode SSH key: %v", err)
	}
	return signer, nil
}
