package at

import "time"

// Clock 等待时间来源，测试中替换为假时钟
type Clock interface {
	Sleep(d time.Duration)
}

// SystemClock 使用 time.Sleep
type SystemClock struct{}

// Sleep 阻塞 d
func (SystemClock) Sleep(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}
