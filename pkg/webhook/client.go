package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client 外部webhook调用客户端
// AI分析和自动化通知共用，按调用方传入的地址发送JSON POST
type Client struct {
	httpClient *http.Client
}

// NewClient 创建webhook客户端
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// PostJSON 发送JSON POST请求，返回响应体
// 非2xx状态码视为调用失败
func (c *Client) PostJSON(url string, payload interface{}) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook地址未配置")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("序列化webhook请求失败: %v", err)
	}

	req, err := http.NewRequest("POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取webhook响应失败: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("webhook返回错误状态码 %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}
