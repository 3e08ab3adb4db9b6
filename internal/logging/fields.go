package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供源站/策略/缓存桶/命中状态字段，供控制器请求日志复用。
func RequestFields(origin, domain, strategy, bucket string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"origin":    origin,
		"domain":    domain,
		"strategy":  strategy,
		"bucket":    bucket,
		"cache_hit": cacheHit,
	}
}

// WeatherFields 提供天气服务日志的数据来源与阶段字段。
func WeatherFields(stage, source string) logrus.Fields {
	return logrus.Fields{
		"action": "weather",
		"stage":  stage,
		"source": source,
	}
}
