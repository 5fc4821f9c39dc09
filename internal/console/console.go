// Package console 交互式LoRa调试终端
package console

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/wfunc/loracam/internal/at"
	apperrors "github.com/wfunc/loracam/internal/errors"
	"github.com/wfunc/loracam/internal/lorawan"
	"go.uber.org/zap"
)

const (
	// rxWindowWait 上行后等待 Class A 接收窗口
	rxWindowWait = 2 * time.Second
	// rawATWait 原始命令的等待时间
	rawATWait = 500 * time.Millisecond

	prompt = "\nLoRa> "
)

// LinkDriver 终端使用的驱动操作
type LinkDriver interface {
	ConnectNetwork(creds lorawan.Credentials) (bool, error)
	SendData(text string, confirm bool) (bool, error)
	ReceiveData() (string, bool, error)
	SendAT(cmd string, wait time.Duration) (at.Response, error)
}

// Options 终端参数
type Options struct {
	Credentials func() lorawan.Credentials
	ListPorts   func() ([]string, error)
	Clock       at.Clock
	Logger      *zap.Logger
}

// Console 交互式终端
type Console struct {
	driver LinkDriver
	opts   Options
	in     *bufio.Scanner
	out    io.Writer
}

// New 创建终端
func New(driver LinkDriver, in io.Reader, out io.Writer, opts Options) *Console {
	if opts.Clock == nil {
		opts.Clock = at.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Console{
		driver: driver,
		opts:   opts,
		in:     bufio.NewScanner(in),
		out:    out,
	}
}

// PrintHelp 输出命令列表
func (c *Console) PrintHelp() {
	fmt.Fprintln(c.out, "\n--- 可用命令 ---")
	fmt.Fprintln(c.out, "  join          : 入网")
	fmt.Fprintln(c.out, "  send <text>   : 发送文本 (例: send Hello)")
	fmt.Fprintln(c.out, "  recv          : 查询下行缓冲")
	fmt.Fprintln(c.out, "  at <command>  : 发送原始AT命令 (例: at AT+DULSTAT?)")
	fmt.Fprintln(c.out, "  ports         : 列出串口")
	fmt.Fprintln(c.out, "  help          : 显示命令列表")
	fmt.Fprintln(c.out, "  exit          : 退出")
	fmt.Fprintln(c.out, "----------------")
}

// Run 读取命令直到 exit 或输入结束
//
// 串口故障会结束循环并返回错误，其余失败只打印结果。
func (c *Console) Run() error {
	c.PrintHelp()

	for {
		fmt.Fprint(c.out, prompt)
		if !c.in.Scan() {
			if err := c.in.Err(); err != nil {
				return err
			}
			fmt.Fprintln(c.out)
			return nil
		}

		line := strings.TrimSpace(c.in.Text())
		if line == "" {
			continue
		}

		cmd, args, _ := strings.Cut(line, " ")
		cmd = strings.ToLower(cmd)
		args = strings.TrimSpace(args)

		if cmd == "exit" || cmd == "quit" {
			fmt.Fprintln(c.out, "Bye!")
			return nil
		}

		if err := c.execute(cmd, args); err != nil {
			c.opts.Logger.Warn("终端命令执行失败", zap.String("command", cmd), zap.Error(err))
			fmt.Fprintf(c.out, "错误: %v\n", err)
			if apperrors.IsCritical(err) {
				return err
			}
		}
	}
}

func (c *Console) execute(cmd, args string) error {
	switch cmd {
	case "help":
		c.PrintHelp()
		return nil
	case "join":
		return c.join()
	case "send":
		return c.send(args)
	case "recv":
		return c.recv("没有下行数据。")
	case "at":
		return c.rawAT(args)
	case "ports":
		return c.ports()
	default:
		fmt.Fprintf(c.out, "未知命令: '%s'，输入 help 查看命令列表。\n", cmd)
		return nil
	}
}

func (c *Console) join() error {
	creds := lorawan.Credentials{}
	if c.opts.Credentials != nil {
		creds = c.opts.Credentials()
	}

	fmt.Fprintf(c.out, "正在入网，DevEUI: %s ...\n", creds.DevEUI)
	ok, err := c.driver.ConnectNetwork(creds)
	if err != nil {
		return err
	}
	if ok {
		fmt.Fprintln(c.out, "结果: 入网成功")
	} else {
		fmt.Fprintln(c.out, "结果: 入网失败")
	}
	return nil
}

func (c *Console) send(text string) error {
	if text == "" {
		fmt.Fprintln(c.out, "请指定要发送的文本 (例: send Hello)")
		return nil
	}

	fmt.Fprintf(c.out, "发送: '%s'\n", text)
	ok, err := c.driver.SendData(text, false)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(c.out, "结果: 发送失败")
		return nil
	}

	fmt.Fprintln(c.out, "结果: 模组已接受发送命令")
	fmt.Fprintln(c.out, "等待下行...")
	c.opts.Clock.Sleep(rxWindowWait)
	return c.recv("未收到下行数据。")
}

func (c *Console) recv(emptyMsg string) error {
	text, ok, err := c.driver.ReceiveData()
	if err != nil {
		return err
	}
	if ok {
		fmt.Fprintf(c.out, "收到下行: %s\n", text)
	} else {
		fmt.Fprintln(c.out, emptyMsg)
	}
	return nil
}

func (c *Console) rawAT(cmd string) error {
	if cmd == "" {
		fmt.Fprintln(c.out, "请指定AT命令 (例: at AT+DULSTAT?)")
		return nil
	}

	lines, err := c.driver.SendAT(cmd, rawATWait)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, "--- 原始响应 ---")
	for _, line := range lines {
		fmt.Fprintln(c.out, line)
	}
	return nil
}

func (c *Console) ports() error {
	if c.opts.ListPorts == nil {
		fmt.Fprintln(c.out, "不支持串口枚举")
		return nil
	}
	ports, err := c.opts.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Fprintln(c.out, "未发现串口")
		return nil
	}
	for _, p := range ports {
		fmt.Fprintln(c.out, p)
	}
	return nil
}
