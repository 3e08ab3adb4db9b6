// Package strategy 聚合离线缓存控制器可用的缓存策略元数据，并提供统一的注册入口。
//
// 策略作者需要：
//  1. 在 internal/strategy/<strategy-key>/ 目录下声明策略画像（Profile）；
//  2. 通过本包暴露的 MustRegister 在 init() 中注册元数据；
//  3. 在 internal/config/modules.go 中以空导入启用该策略。
//
// 控制器只依据 Profile 中的开关执行读写顺序、TTL 与回退逻辑，不感知具体策略实现。
package strategy
