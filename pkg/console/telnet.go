package console

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// Telnet 协议命令字节（RFC 854）
const (
	telnetSE   = 240
	telnetNOP  = 241
	telnetSB   = 250
	telnetWILL = 251
	telnetWONT = 252
	telnetDO   = 253
	telnetDONT = 254
	telnetIAC  = 255
)

// telnetTransport 原始telnet传输
// GNS3 控制台为无TLS的行式文本流，但 telnetd 仍会发送 IAC 选项协商；
// 读取路径中剥离协商序列并统一拒绝所有选项，保证上层只看到终端文本。
type telnetTransport struct {
	conn    net.Conn
	writeMu sync.Mutex

	// IAC 解析状态跨 Read 调用保持（协商序列可能被拆分到多个TCP分段）
	iacState int
	iacCmd   byte
}

// IAC 解析状态
const (
	iacStateData = iota
	iacStateCmd
	iacStateOpt
	iacStateSub
	iacStateSubIAC
)

// dialTelnet 建立telnet连接
func dialTelnet(host string, port int, timeout time.Duration) (*telnetTransport, error) {
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.Dial("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, err
	}
	return &telnetTransport{conn: conn}, nil
}

// Read 读取并剥离IAC协商序列
func (t *telnetTransport) Read(p []byte) (int, error) {
	raw := make([]byte, len(p))
	for {
		n, err := t.conn.Read(raw)
		if n > 0 {
			filtered := t.filter(raw[:n], p[:0])
			if len(filtered) > 0 {
				return len(filtered), err
			}
		}
		if err != nil {
			return 0, err
		}
		// 本次分段只含协商字节，继续读取
	}
}

// filter 处理一段原始字节，返回过滤后的文本字节；对协商请求即时应答拒绝
func (t *telnetTransport) filter(raw []byte, dst []byte) []byte {
	for _, b := range raw {
		switch t.iacState {
		case iacStateData:
			if b == telnetIAC {
				t.iacState = iacStateCmd
				continue
			}
			dst = append(dst, b)
		case iacStateCmd:
			switch b {
			case telnetIAC:
				// IAC IAC 表示字面量 0xFF
				dst = append(dst, telnetIAC)
				t.iacState = iacStateData
			case telnetWILL, telnetWONT, telnetDO, telnetDONT:
				t.iacCmd = b
				t.iacState = iacStateOpt
			case telnetSB:
				t.iacState = iacStateSub
			default:
				// NOP 等单字节命令
				t.iacState = iacStateData
			}
		case iacStateOpt:
			t.respond(t.iacCmd, b)
			t.iacState = iacStateData
		case iacStateSub:
			if b == telnetIAC {
				t.iacState = iacStateSubIAC
			}
		case iacStateSubIAC:
			if b == telnetSE {
				t.iacState = iacStateData
			} else {
				t.iacState = iacStateSub
			}
		}
	}
	return dst
}

// respond 拒绝对端的选项协商：WILL→DONT，DO→WONT，WONT/DONT不应答
func (t *telnetTransport) respond(cmd, opt byte) {
	var reply byte
	switch cmd {
	case telnetWILL:
		reply = telnetDONT
	case telnetDO:
		reply = telnetWONT
	default:
		return
	}
	t.writeMu.Lock()
	_, _ = t.conn.Write([]byte{telnetIAC, reply, opt})
	t.writeMu.Unlock()
}

// Write 写入文本，转义字面量IAC字节
func (t *telnetTransport) Write(p []byte) (int, error) {
	escaped := make([]byte, 0, len(p))
	for _, b := range p {
		if b == telnetIAC {
			escaped = append(escaped, telnetIAC)
		}
		escaped = append(escaped, b)
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.conn.Write(escaped); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close 关闭连接
func (t *telnetTransport) Close() error {
	return t.conn.Close()
}
