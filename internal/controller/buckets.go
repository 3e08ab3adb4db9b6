package controller

import (
	"fmt"

	"github.com/punk-blvck/blvck-hub/internal/strategy"
)

// Buckets 根据前缀与版本生成缓存桶名称。
type Buckets struct {
	Prefix  string
	Version string
}

// Name 返回 <prefix>-<role>-<version>。
func (b Buckets) Name(role strategy.BucketRole) string {
	return fmt.Sprintf("%s-%s-%s", b.Prefix, role, b.Version)
}

// Legacy 返回旧版统一桶名 <prefix>-<version>，保留在版本集合中但不再创建。
func (b Buckets) Legacy() string {
	return fmt.Sprintf("%s-%s", b.Prefix, b.Version)
}

// KeepSet 返回当前版本集合，激活时不在集合内的桶都会被删除。
// 顺序同时决定跨桶查找缓存的次序。
func (b Buckets) KeepSet() []string {
	return []string{
		b.Name(strategy.BucketStatic),
		b.Name(strategy.BucketDynamic),
		b.Name(strategy.BucketWeather),
		b.Legacy(),
	}
}

// Contains 判断桶名是否属于当前版本集合。
func (b Buckets) Contains(name string) bool {
	for _, keep := range b.KeepSet() {
		if keep == name {
			return true
		}
	}
	return false
}
