package design

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// 元素 id 使用 ULID：进程内单调递增、全局唯一、永不复用。
// entropy 加锁以便多个 builder 会话共用同一个生成器。
var (
	idMu      sync.Mutex
	idEntropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// NewElementID 生成一个新的元素 id。
func NewElementID() string {
	idMu.Lock()
	defer idMu.Unlock()
	return "el_" + strings.ToLower(ulid.MustNew(ulid.Timestamp(time.Now()), idEntropy).String())
}
