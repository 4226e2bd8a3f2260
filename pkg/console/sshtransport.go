package console

import (
	"fmt"
	"io"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
)

// sshTransport SSH控制台传输
// 部分实验拓扑通过SSH暴露设备控制台；建立单个PTY Shell会话后，
// 上层的提示符状态机与telnet路径完全一致。
type sshTransport struct {
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
}

// dialSSH 建立SSH连接并打开交互式Shell
// 算法列表放宽到旧式KEX/Cipher/MAC，兼容老版本网络设备镜像。
func dialSSH(host string, port int, username, password string, timeout time.Duration) (*sshTransport, error) {
	sshConfig := &ssh.ClientConfig{
		User:            username,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
		Config: ssh.Config{
			KeyExchanges: []string{
				"diffie-hellman-group14-sha256",
				"diffie-hellman-group14-sha1",
				"diffie-hellman-group1-sha1",
				"diffie-hellman-group-exchange-sha256",
				"ecdh-sha2-nistp256",
				"ecdh-sha2-nistp384",
				"ecdh-sha2-nistp521",
			},
			Ciphers: []string{
				"aes128-ctr", "aes192-ctr", "aes256-ctr",
				"aes128-gcm@openssh.com", "aes256-gcm@openssh.com",
				"aes128-cbc", "aes256-cbc", "3des-cbc",
			},
			MACs: []string{
				"hmac-sha2-256-etm@openssh.com", "hmac-sha2-256",
				"hmac-sha1", "hmac-sha1-96",
			},
		},
		HostKeyAlgorithms: []string{
			"ssh-rsa", "rsa-sha2-256", "rsa-sha2-512",
			"ecdsa-sha2-nistp256", "ecdsa-sha2-nistp384", "ecdsa-sha2-nistp521",
		},
	}

	if password != "" {
		// 同时尝试 password 与 keyboard-interactive，提高与网络设备的兼容性
		sshConfig.Auth = []ssh.AuthMethod{
			ssh.Password(password),
			ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = password
				}
				return answers, nil
			}),
		}
	}

	address := fmt.Sprintf("%s:%d", host, port)
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.Dial("tcp", address)
	if err != nil {
		return nil, err
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, sshConfig)
	if err != nil {
		conn.Close()
		return nil, err
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	// 启用回显的终端模式，终端类型按 vt100 → xterm → ansi → dumb 回退
	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	var ptyErr error
	for _, term := range []string{"vt100", "xterm", "ansi", "dumb"} {
		if ptyErr = session.RequestPty(term, 80, 24, modes); ptyErr == nil {
			break
		}
	}
	if ptyErr != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("failed to request pty: %w", ptyErr)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("failed to get stdin: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("failed to get stdout: %w", err)
	}

	if err := session.Shell(); err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("failed to start shell: %w", err)
	}

	return &sshTransport{
		client:  client,
		session: session,
		stdin:   stdin,
		stdout:  stdout,
	}, nil
}

func (t *sshTransport) Read(p []byte) (int, error) {
	return t.stdout.Read(p)
}

func (t *sshTransport) Write(p []byte) (int, error) {
	return t.stdin.Write(p)
}

func (t *sshTransport) Close() error {
	_ = t.stdin.Close()
	_ = t.session.Close()
	return t.client.Close()
}
