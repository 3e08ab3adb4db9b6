package controller

import (
	"net/url"
	"path"
	"strings"
)

// Destination 对应浏览器 Sec-Fetch-Dest 描述的请求用途。
type Destination string

const (
	DestinationDocument Destination = "document"
	DestinationScript   Destination = "script"
	DestinationStyle    Destination = "style"
	DestinationImage    Destination = "image"
	DestinationFont     Destination = "font"
	DestinationManifest Destination = "manifest"
	DestinationEmpty    Destination = "empty"
)

var imageExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".gif":  {},
	".webp": {},
	".avif": {},
	".svg":  {},
	".ico":  {},
	".bmp":  {},
}

var fontExtensions = map[string]struct{}{
	".woff":  {},
	".woff2": {},
	".ttf":   {},
	".otf":   {},
}

// RequestDescriptor 是分类所需的请求快照：方法、上游绝对 URL 与请求用途。
type RequestDescriptor struct {
	Method      string
	URL         *url.URL
	Destination Destination
}

// DescribeRequest 构造请求快照，secFetchDest 为空时根据路径与 Accept 推断用途。
func DescribeRequest(method string, target *url.URL, secFetchDest, accept string) RequestDescriptor {
	p := ""
	if target != nil {
		p = target.Path
	}
	return RequestDescriptor{
		Method:      strings.ToUpper(strings.TrimSpace(method)),
		URL:         target,
		Destination: InferDestination(secFetchDest, p, accept),
	}
}

// InferDestination 优先使用 Sec-Fetch-Dest，其次按扩展名推断，
// 无扩展名且 Accept 包含 text/html 的导航视为 document。
func InferDestination(secFetchDest, requestPath, accept string) Destination {
	if dest := strings.ToLower(strings.TrimSpace(secFetchDest)); dest != "" {
		return Destination(dest)
	}

	ext := strings.ToLower(path.Ext(requestPath))
	switch ext {
	case ".js", ".mjs":
		return DestinationScript
	case ".css":
		return DestinationStyle
	case ".html", ".htm":
		return DestinationDocument
	case ".webmanifest":
		return DestinationManifest
	}
	if _, ok := imageExtensions[ext]; ok {
		return DestinationImage
	}
	if _, ok := fontExtensions[ext]; ok {
		return DestinationFont
	}
	if ext == "" && strings.Contains(strings.ToLower(accept), "text/html") {
		return DestinationDocument
	}
	return DestinationEmpty
}
