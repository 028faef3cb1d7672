package Adhoc

import (
	"context"
	"fmt"
	"net"
	"time"

	"YoloDetServer/logger"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	CpuInstance    = 0x2002
	CudaInstance   = 0x2003
	TimeOutSeconds = 5
)

type RegisterRequest struct {
	Id            string   `json:"id"`
	IP            string   `json:"ip"`
	Port          int      `json:"port"`
	HTTPPort      int      `json:"httpPort"`
	InstanceClass int      `json:"instanceClass"`
	Models        []string `json:"models"`
	Device        string   `json:"device"`
	TimeStamp     int64    `json:"timestamp"`
}

type RegisterResponse struct {
	Id      string `json:"id"`
	Success bool   `json:"success"`
}

type RegServerConfig struct {
	Port int
	Addr string
}

func (reg *RegServerConfig) SetAddress(addr string, port int) {
	reg.Addr = addr
	reg.Port = port
}

func (reg RegServerConfig) URL() string {
	return fmt.Sprintf("http://%s:%d/api/register", reg.Addr, reg.Port)
}

// Heartbeat announces this node to a registration server every Interval.
type Heartbeat struct {
	Server        RegServerConfig
	IP            string
	Port          int
	HTTPPort      int
	InstanceClass int
	Device        string
	Interval      time.Duration
	// Models is read on every beat so the server sees engines come and go.
	Models func() []string

	id     string
	client *resty.Client
}

func NewHeartbeat(server RegServerConfig, ip string, port int) *Heartbeat {
	return &Heartbeat{
		Server:        server,
		IP:            ip,
		Port:          port,
		InstanceClass: CpuInstance,
		Interval:      TimeOutSeconds * time.Second,
		id:            uuid.NewString(),
		client:        resty.New().SetTimeout(TimeOutSeconds * time.Second),
	}
}

func (h *Heartbeat) ID() string {
	return h.id
}

// Send posts one RegisterRequest.
func (h *Heartbeat) Send(ctx context.Context) (RegisterResponse, error) {
	var respBody RegisterResponse
	reqBody := RegisterRequest{
		Id:            h.id,
		IP:            h.IP,
		Port:          h.Port,
		HTTPPort:      h.HTTPPort,
		InstanceClass: h.InstanceClass,
		Device:        h.Device,
		Models:        []string{},
		TimeStamp:     time.Now().Unix(),
	}
	if h.Models != nil {
		if m := h.Models(); m != nil {
			reqBody.Models = m
		}
	}
	resp, err := h.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(reqBody).
		SetResult(&respBody).
		Post(h.Server.URL())
	if err != nil {
		return respBody, fmt.Errorf("request error: %w", err)
	}
	if resp.IsError() {
		return respBody, fmt.Errorf("server returned error: %s, body: %s", resp.Status(), resp.String())
	}
	return respBody, nil
}

// Run beats until ctx is done. Failures are logged, never fatal.
func (h *Heartbeat) Run(ctx context.Context) {
	interval := h.Interval
	if interval <= 0 {
		interval = TimeOutSeconds * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	safeDoRequest := func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Log().Error("SendAliveMessage panic recovered", zap.Any("panic", r))
			}
		}()
		if _, err := h.Send(ctx); err != nil && ctx.Err() == nil {
			logger.Log().Error("Heartbeat failed", zap.String("url", h.Server.URL()), zap.Error(err))
		}
	}
	safeDoRequest()
	for {
		select {
		case <-ctx.Done():
			logger.Log().Info("Heartbeat context cancelled, exiting goroutine.")
			return
		case <-ticker.C:
			safeDoRequest()
		}
	}
}

// GetOutboundIP returns the local address used to reach the internet. No
// packet is sent; dialing UDP only consults the routing table.
func GetOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String(), nil
}
