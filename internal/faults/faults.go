// Package faults 定义网关与天气服务共享的错误分类，基于 jmgilman/go/errors 的错误码与重试分类。
package faults

import (
	"fmt"

	perrors "github.com/jmgilman/go/errors"
)

// 故障分类码，与 HTTP 错误体中的 error 字段保持一致（小写形式）。
const (
	CodeGeolocationDenied      perrors.ErrorCode = "GEOLOCATION_PERMISSION_DENIED"
	CodeGeolocationUnavailable perrors.ErrorCode = "GEOLOCATION_UNAVAILABLE"
	CodeGeolocationTimeout     perrors.ErrorCode = "GEOLOCATION_TIMEOUT"
	CodeFetchFailed            perrors.ErrorCode = "NETWORK_FETCH_FAILED"
	CodeQuotaExceeded          perrors.ErrorCode = "STORAGE_QUOTA_EXCEEDED"
	CodeMalformedResponse      perrors.ErrorCode = "PROVIDER_RESPONSE_MALFORMED"
)

// FetchFailed 包装一次上游请求失败，附带 url/status 上下文。status 为 0 表示网络层失败。
func FetchFailed(cause error, target string, status int) error {
	var err perrors.PlatformError
	if cause == nil {
		err = perrors.Newf(CodeFetchFailed, "fetch %s failed with status %d", target, status)
	} else {
		err = perrors.Wrapf(cause, CodeFetchFailed, "fetch %s failed", target)
	}
	err = perrors.WithClassification(err, perrors.ClassificationRetryable)
	return perrors.WithContextMap(err, map[string]interface{}{
		"url":    target,
		"status": status,
	})
}

// QuotaExceeded 表示写入会让缓存目录超过配置的 StorageQuota。
func QuotaExceeded(bucket string, used, limit int64) error {
	err := perrors.Newf(CodeQuotaExceeded, "bucket %s: storage quota exceeded (%d/%d bytes)", bucket, used, limit)
	return perrors.WithContext(err, "bucket", bucket)
}

// Malformed 包装供应商返回的无法解析的响应体。
func Malformed(cause error, provider string) error {
	if cause == nil {
		cause = fmt.Errorf("unexpected payload")
	}
	return perrors.Wrapf(cause, CodeMalformedResponse, "%s response malformed", provider)
}

// Geolocation 以定位失败原因构造错误，timeout 归类为可重试。
func Geolocation(code perrors.ErrorCode, message string) error {
	err := perrors.New(code, message)
	if code == CodeGeolocationTimeout {
		return perrors.WithClassification(err, perrors.ClassificationRetryable)
	}
	return err
}

// Code 返回错误链上最外层的分类码，非平台错误返回 UNKNOWN。
func Code(err error) perrors.ErrorCode {
	return perrors.GetCode(err)
}

// Is 判断 err 是否属于指定分类码。
func Is(err error, code perrors.ErrorCode) bool {
	if err == nil {
		return false
	}
	var platformErr perrors.PlatformError
	for e := err; e != nil; {
		if perrors.As(e, &platformErr) {
			if platformErr.Code() == code {
				return true
			}
			e = platformErr.Unwrap()
			continue
		}
		break
	}
	return false
}
