package services

import (
	"fmt"
	"net"
	"sync"

	"github.com/oschwald/geoip2-golang"

	"content-pool/internal/logging"
)

// LocalCountry 内网与回环地址使用的国家代码
const LocalCountry = "LOCAL"

// maxCacheEntries 缓存上限，超出后清空重建
const maxCacheEntries = 10000

// GeoIPService 基于本地 MaxMind 数据库的IP国家解析服务
type GeoIPService struct {
	reader *geoip2.Reader
	mu     sync.RWMutex
	cache  map[string]string
}

// NewGeoIPService 打开 mmdb 数据库
func NewGeoIPService(dbPath string) (*GeoIPService, error) {
	reader, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open geoip database %s: %w", dbPath, err)
	}
	return &GeoIPService{
		reader: reader,
		cache:  make(map[string]string),
	}, nil
}

// Country 返回 ISO 3166-1 国家代码，无法解析时返回空字符串
func (s *GeoIPService) Country(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ""
	}
	if isPrivateIP(parsed) {
		return LocalCountry
	}
	if s == nil || s.reader == nil {
		return ""
	}

	s.mu.RLock()
	code, ok := s.cache[ip]
	s.mu.RUnlock()
	if ok {
		return code
	}

	record, err := s.reader.Country(parsed)
	if err != nil {
		logging.DefaultLogger.Debug("GeoIP lookup failed for %s: %v", ip, err)
		return ""
	}
	code = record.Country.IsoCode

	s.mu.Lock()
	if len(s.cache) >= maxCacheEntries {
		s.cache = make(map[string]string)
	}
	s.cache[ip] = code
	s.mu.Unlock()
	return code
}

// Close 关闭数据库
func (s *GeoIPService) Close() error {
	if s == nil || s.reader == nil {
		return nil
	}
	return s.reader.Close()
}

// isPrivateIP 判断是否为内网、回环或链路本地地址
func isPrivateIP(ip net.IP) bool {
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}
