package console

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// 会话默认参数
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultReadTimeout    = 30 * time.Second
	DefaultQuiescence     = 300 * time.Millisecond
	DefaultIdleTimeout    = 120 * time.Second
	DefaultLoginAttempts  = 3
	DefaultMaxPages       = 500
	DefaultContinueKey    = " "
)

// 控制台协议
const (
	ProtocolTelnet = "telnet"
	ProtocolSSH    = "ssh"
)

// 默认提示符后缀与分页/错误提示（Cisco/Huawei/H3C 通用集合）
var (
	DefaultPromptSuffixes = []string{">", "#", "$", "]"}
	DefaultPageMarkers    = []string{"--more--", "-- more --", "press any key"}
	DefaultErrorHints     = []string{"% invalid input", "% incomplete command", "% ambiguous command", "unrecognized command", "error:"}
)

// State 会话生命周期状态
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateReady
	StateExecuting
	StateClosing
	StateClosed
	StateFailed
)

// String 状态名
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	case StateExecuting:
		return "executing"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Endpoint 控制台连接端点
type Endpoint struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Protocol string `json:"protocol"` // telnet | ssh，空值按telnet处理
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// Options 会话参数；零值字段在Open时填充默认值
type Options struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	Quiescence     time.Duration
	IdleTimeout    time.Duration
	LoginAttempts  int
	MaxPages       int
	ContinueKey    string
	PromptPattern  string // 设备级自定义提示符正则，优先于后缀集
	PromptSuffixes []string
	PageMarkers    []string
	ErrorHints     []string
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	if o.Quiescence <= 0 {
		o.Quiescence = DefaultQuiescence
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = DefaultIdleTimeout
	}
	if o.LoginAttempts <= 0 {
		o.LoginAttempts = DefaultLoginAttempts
	}
	if o.MaxPages <= 0 {
		o.MaxPages = DefaultMaxPages
	}
	if o.ContinueKey == "" {
		o.ContinueKey = DefaultContinueKey
	}
	if len(o.PromptSuffixes) == 0 {
		o.PromptSuffixes = DefaultPromptSuffixes
	}
	if len(o.PageMarkers) == 0 {
		o.PageMarkers = DefaultPageMarkers
	}
	if len(o.ErrorHints) == 0 {
		o.ErrorHints = DefaultErrorHints
	}
	return o
}

// CommandResult 单条命令的执行结果
type CommandResult struct {
	Command string        `json:"command"`
	Output  string        `json:"output"`
	Success bool          `json:"success"`
	Error   string        `json:"error,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// HarvestResult 运行配置采集结果
// Truncated 表示分页续发达到安全上限后返回的部分文本（视为带标记的成功）
type HarvestResult struct {
	Device     string        `json:"device,omitempty"`
	Command    string        `json:"command"`
	Text       string        `json:"text"`
	Pages      int           `json:"pages"`
	Truncated  bool          `json:"truncated"`
	Elapsed    time.Duration `json:"elapsed"`
	CapturedAt time.Time     `json:"captured_at"`
}

// Transport 控制台底层传输（telnet或SSH PTY）
type Transport interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Session 一条设备控制台会话
// 会话为单持有者模型：Run/Harvest 通过互斥锁串行化，同一时刻只允许一个在途操作。
type Session struct {
	id       string
	endpoint Endpoint
	opts     Options
	matcher  *Matcher

	transport Transport
	readCh    chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu         sync.Mutex // 操作互斥锁：Run/Harvest/Close期间持有
	state      atomic.Int32
	lastActive atomic.Int64
	prompt     atomic.Value // string 最近一次匹配到的提示符行
	readErr    atomic.Value // error 读取协程记录的底层错误
}

// Open 建立控制台会话并等待首个提示符
// 连接超时内未收到任何字节返回ConnectTimeout；收到字节但硬超时内未解析出
// 提示符返回PromptTimeout；登录交互失败返回AuthFailed。
func Open(endpoint Endpoint, opts Options) (*Session, error) {
	opts = opts.withDefaults()
	matcher, err := NewMatcher(opts.PromptPattern, opts.PromptSuffixes, opts.PageMarkers, opts.ErrorHints)
	if err != nil {
		return nil, WrapError(KindSessionFailed, "build prompt matcher", err)
	}

	s := &Session{
		id:       uuid.NewString(),
		endpoint: endpoint,
		opts:     opts,
		matcher:  matcher,
		readCh:   make(chan []byte, 256),
		done:     make(chan struct{}),
	}
	s.setState(StateConnecting)
	s.touch()

	var transport Transport
	switch strings.ToLower(strings.TrimSpace(endpoint.Protocol)) {
	case "", ProtocolTelnet:
		transport, err = dialTelnet(endpoint.Host, endpoint.Port, opts.ConnectTimeout)
	case ProtocolSSH:
		transport, err = dialSSH(endpoint.Host, endpoint.Port, endpoint.Username, endpoint.Password, opts.ConnectTimeout)
	default:
		return nil, NewError(KindSessionFailed, fmt.Sprintf("unsupported console protocol %q", endpoint.Protocol))
	}
	if err != nil {
		s.state.Store(int32(StateFailed))
		return nil, classifyDialError(endpoint, err)
	}
	s.transport = transport

	go s.readLoop()
	go s.idleWatchdog()

	if err := s.settle(); err != nil {
		return nil, err
	}
	s.setState(StateReady)
	return s, nil
}

// ID 会话标识
func (s *Session) ID() string { return s.id }

// State 当前生命周期状态
func (s *Session) State() State { return State(s.state.Load()) }

// Prompt 最近一次匹配到的提示符行（如 "Router#"）
func (s *Session) Prompt() string {
	if v := s.prompt.Load(); v != nil {
		return v.(string)
	}
	return ""
}

// LastActive 最近一次收发数据的时间
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

func (s *Session) touch() { s.lastActive.Store(time.Now().UnixNano()) }

func (s *Session) storedReadErr() error {
	if v := s.readErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// readLoop 读取协程：将设备字节块推入通道，I/O错误时关闭通道
func (s *Session) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, err := s.transport.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case s.readCh <- chunk:
				s.touch()
			case <-s.done:
				return
			}
		}
		if err != nil {
			s.readErr.Store(err)
			close(s.readCh)
			return
		}
	}
}

// idleWatchdog 空闲超时看护：Ready状态下长时间无活动则关闭会话
func (s *Session) idleWatchdog() {
	interval := s.opts.IdleTimeout / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if s.State() == StateReady && time.Since(s.LastActive()) > s.opts.IdleTimeout {
				_ = s.Close()
				return
			}
		}
	}
}

// settle 等待首个提示符，期间处理登录交互与横幅
// 设备建立连接后往往需要键入回车才显示提示符，周期性发送CRLF诱发。
func (s *Session) settle() error {
	var buf bytes.Buffer
	received := false
	rejected := false
	loginAttempts := 0

	connectTimer := time.NewTimer(s.opts.ConnectTimeout)
	defer connectTimer.Stop()
	hardTimer := time.NewTimer(s.opts.ConnectTimeout + s.opts.ReadTimeout)
	defer hardTimer.Stop()
	nudger := time.NewTicker(time.Second)
	defer nudger.Stop()
	nudges := 0

	quiesce := time.NewTimer(s.opts.Quiescence)
	stopTimer(quiesce)
	armed := false

	for {
		select {
		case chunk, ok := <-s.readCh:
			if !ok {
				s.fail()
				return WrapError(KindSessionFailed, "console stream closed during open", s.storedReadErr())
			}
			received = true
			buf.Write(chunk)
			tail := tailLine(buf.String())

			// 拒绝横幅可能被TCP分段切开，在缓冲区尾部窗口内匹配而非单个分片
			win := buf.Bytes()
			if len(win) > 512 {
				win = win[len(win)-512:]
			}
			if s.matcher.AuthRejected(string(win)) {
				rejected = true
				if loginAttempts >= s.opts.LoginAttempts {
					s.fail()
					return NewError(KindAuthFailed, fmt.Sprintf("authentication rejected after %d attempts", loginAttempts))
				}
			}
			if s.matcher.AtLoginPrompt(tail) && s.endpoint.Username != "" {
				s.setState(StateAuthenticating)
				loginAttempts++
				if loginAttempts > s.opts.LoginAttempts {
					s.fail()
					return NewError(KindAuthFailed, fmt.Sprintf("login prompt re-presented %d times", loginAttempts))
				}
				if err := s.write(s.endpoint.Username + "\r\n"); err != nil {
					return err
				}
				if armed {
					stopTimer(quiesce)
					armed = false
				}
				continue
			}
			if s.matcher.AtPasswordPrompt(tail) && s.endpoint.Password != "" {
				s.setState(StateAuthenticating)
				if err := s.write(s.endpoint.Password + "\r\n"); err != nil {
					return err
				}
				if armed {
					stopTimer(quiesce)
					armed = false
				}
				continue
			}

			if s.matcher.AtPrompt(tail) {
				if armed {
					stopTimer(quiesce)
				}
				quiesce.Reset(s.opts.Quiescence)
				armed = true
			} else if armed {
				stopTimer(quiesce)
				armed = false
			}

		case <-quiesce.C:
			armed = false
			tail := tailLine(buf.String())
			if s.matcher.AtPrompt(tail) {
				s.prompt.Store(strings.TrimSpace(sanitizeLine(tail)))
				return nil
			}

		case <-nudger.C:
			// 最多诱发12次，避免刷屏；登录交互进行中不再发送
			if nudges < 12 && s.State() != StateAuthenticating {
				if err := s.writeRaw("\r\n"); err != nil {
					return err
				}
				nudges++
			}

		case <-connectTimer.C:
			if !received {
				s.fail()
				return NewError(KindConnectTimeout, fmt.Sprintf("no data from %s:%d within %s", s.endpoint.Host, s.endpoint.Port, s.opts.ConnectTimeout))
			}

		case <-hardTimer.C:
			s.fail()
			if rejected {
				return NewError(KindAuthFailed, "authentication rejected and no prompt reached")
			}
			return NewError(KindPromptTimeout, "no recognizable prompt after connect")
		}
	}
}

// capture 收集输出直到提示符收敛或超时
// 返回原始文本、已发送的分页续发次数与截断标记；PromptTimeout不在此处标记
// 会话失效，由调用方按操作语义决定。
func (s *Session) capture(timeout time.Duration, maxPages int) (string, int, bool, error) {
	var buf bytes.Buffer
	pages := 0
	lastMarkerOff := -1

	hard := time.NewTimer(timeout)
	defer hard.Stop()
	quiesce := time.NewTimer(s.opts.Quiescence)
	stopTimer(quiesce)
	armed := false

	for {
		select {
		case chunk, ok := <-s.readCh:
			if !ok {
				s.fail()
				return buf.String(), pages, false, WrapError(KindSessionFailed, "console stream closed", s.storedReadErr())
			}
			buf.Write(chunk)
			tail := tailLine(buf.String())

			if s.matcher.PageMarker(tail) && buf.Len() > lastMarkerOff {
				if armed {
					stopTimer(quiesce)
					armed = false
				}
				if pages >= maxPages {
					// 安全上限：带截断标记返回已捕获的部分文本
					return buf.String(), pages, true, nil
				}
				if err := s.writeRaw(s.opts.ContinueKey); err != nil {
					return buf.String(), pages, false, err
				}
				pages++
				lastMarkerOff = buf.Len()
				// 分页仍在推进说明流是健康的，重置硬超时；
				// 总量上限由maxPages承担，硬超时只拦截真正停滞的流。
				stopTimer(hard)
				hard.Reset(timeout)
				continue
			}

			if s.matcher.AtPrompt(tail) {
				if armed {
					stopTimer(quiesce)
				}
				quiesce.Reset(s.opts.Quiescence)
				armed = true
			} else if armed {
				stopTimer(quiesce)
				armed = false
			}

		case <-quiesce.C:
			armed = false
			tail := tailLine(buf.String())
			if s.matcher.AtPrompt(tail) {
				s.prompt.Store(strings.TrimSpace(sanitizeLine(tail)))
				return buf.String(), pages, false, nil
			}

		case <-hard.C:
			return buf.String(), pages, false, NewError(KindPromptTimeout, fmt.Sprintf("prompt not resolved within %s", timeout))
		}
	}
}

// drain 丢弃通道中残留的输出（上一条命令的延迟回显、横幅等）
func (s *Session) drain() {
	for {
		select {
		case _, ok := <-s.readCh:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// write 写入并换行结尾的文本；失败时标记会话失效
func (s *Session) write(text string) error {
	return s.writeRaw(text)
}

func (s *Session) writeRaw(text string) error {
	if _, err := s.transport.Write([]byte(text)); err != nil {
		s.fail()
		return WrapError(KindSessionFailed, "console write failed", err)
	}
	s.touch()
	return nil
}

// Close 正常关闭会话
func (s *Session) Close() error {
	s.shutdown(StateClosed)
	return nil
}

// fail 标记会话失效（终态，不可复用）
func (s *Session) fail() {
	s.shutdown(StateFailed)
}

func (s *Session) shutdown(final State) {
	s.closeOnce.Do(func() {
		if final == StateClosed {
			s.setState(StateClosing)
		}
		close(s.done)
		if s.transport != nil {
			_ = s.transport.Close()
		}
		s.setState(final)
	})
}

// classifyDialError 将拨号错误映射到错误分类
func classifyDialError(endpoint Endpoint, err error) error {
	target := fmt.Sprintf("%s:%d", endpoint.Host, endpoint.Port)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return WrapError(KindConnectTimeout, "dial "+target, err)
	}
	if errors.Is(err, syscall.ECONNREFUSED) || strings.Contains(err.Error(), "connection refused") {
		return WrapError(KindConnectionRefused, "dial "+target, err)
	}
	if strings.Contains(err.Error(), "unable to authenticate") || strings.Contains(err.Error(), "handshake failed") {
		return WrapError(KindAuthFailed, "ssh auth to "+target, err)
	}
	return WrapError(KindSessionFailed, "dial "+target, err)
}

// stopTimer 停止定时器并清空已触发的信号
func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
