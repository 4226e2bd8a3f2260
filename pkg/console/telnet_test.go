package console

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTelnetFilterStripsNegotiation 测试IAC协商剥离与拒绝应答
func TestTelnetFilterStripsNegotiation(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	transport := &telnetTransport{conn: client}
	defer transport.Close()

	// 服务端：WILL ECHO + DO SGA 混在文本中
	go func() {
		server.Write([]byte{telnetIAC, telnetWILL, 1})
		server.Write([]byte("hel"))
		server.Write([]byte{telnetIAC, telnetDO, 3})
		server.Write([]byte("lo"))
	}()

	// net.Pipe 为同步管道：respond() 在 Read 路径内阻塞写应答，
	// 须在读取文本前并发排空客户端的协商应答，否则双方互相阻塞死锁
	reply := make([]byte, 6)
	replyErr := make(chan error, 1)
	go func() {
		_, err := readFull(server, reply)
		replyErr <- err
	}()

	buf := make([]byte, 64)
	text := ""
	for len(text) < 5 {
		n, err := transport.Read(buf)
		require.NoError(t, err)
		text += string(buf[:n])
	}
	assert.Equal(t, "hello", text, "协商字节不得泄漏到文本流")

	// 客户端应答：WILL→DONT，DO→WONT
	select {
	case err := <-replyErr:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("等待协商应答超时")
	}
	assert.Equal(t, []byte{telnetIAC, telnetDONT, 1, telnetIAC, telnetWONT, 3}, reply)
}

// TestTelnetFilterSplitAcrossReads 测试协商序列被拆分到多个分段
func TestTelnetFilterSplitAcrossReads(t *testing.T) {
	transport := &telnetTransport{}

	out := transport.filter([]byte{'a', telnetIAC}, nil)
	assert.Equal(t, []byte{'a'}, out)
	// 命令字节在下一个分段到达
	out = transport.filter([]byte{telnetNOP, 'b'}, nil)
	assert.Equal(t, []byte{'b'}, out)
}

// TestTelnetFilterLiteralIAC 测试 IAC IAC 字面量
func TestTelnetFilterLiteralIAC(t *testing.T) {
	transport := &telnetTransport{}
	out := transport.filter([]byte{'x', telnetIAC, telnetIAC, 'y'}, nil)
	assert.Equal(t, []byte{'x', 0xFF, 'y'}, out)
}

// TestTelnetFilterSubnegotiation 测试子协商序列整体剥离
func TestTelnetFilterSubnegotiation(t *testing.T) {
	transport := &telnetTransport{}
	// IAC SB <opt> ... IAC SE 之间的内容全部丢弃
	seq := append([]byte{'a', telnetIAC, telnetSB, 24}, []byte("vt100")...)
	seq = append(seq, telnetIAC, telnetSE, 'b')
	out := transport.filter(seq, nil)
	assert.Equal(t, []byte{'a', 'b'}, out)
}

// TestTelnetWriteEscapesIAC 测试写出方向的IAC转义
func TestTelnetWriteEscapesIAC(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	transport := &telnetTransport{conn: client}
	defer transport.Close()

	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 16)
		n, _ := server.Read(buf)
		done <- buf[:n]
	}()

	n, err := transport.Write([]byte{'a', 0xFF, 'b'})
	require.NoError(t, err)
	assert.Equal(t, 3, n, "返回长度为调用方写入的字节数")
	assert.Equal(t, []byte{'a', telnetIAC, telnetIAC, 'b'}, <-done)
}

func readFull(conn net.Conn, p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := conn.Read(p[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
