// Package ixc integrates with the IXC billing/ISP system. All outbound
// calls are rate limited and bounded by the configured HTTP timeout;
// callers treat push failures as best-effort.
package ixc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/spec-kit/autonoc/internal/config"
)

// SubscriberStatus reports a subscriber's PPPoE session state.
type SubscriberStatus struct {
	Online     bool   `json:"online"`
	IP         string `json:"ip,omitempty"`
	LastStatus string `json:"last_status"`
}

// RemoteTicket is an open service order as exposed by the IXC API.
type RemoteTicket struct {
	ID           string `json:"id"`
	Number       string `json:"numero"`
	CustomerID   string `json:"cliente_id"`
	CustomerName string `json:"cliente_nome"`
	Address      string `json:"endereco"`
	Neighborhood string `json:"bairro"`
	City         string `json:"cidade"`
	Phone        string `json:"telefone"`
	Contract     string `json:"contrato"`
	Plan         string `json:"plano"`
	Problem      string `json:"problema"`
	Status       string `json:"status"`
	OpenedAt     string `json:"data_abertura"`
	Priority     string `json:"prioridade"`
}

// Remote O.S. status codes pushed back to IXC.
const (
	StatusCodeResolved   = "R"
	StatusCodeFinished   = "F"
	StatusCodeInProgress = "E"
	StatusCodeScheduled  = "G"
)

// Client talks to the IXC webservice.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient builds an IXC client from configuration.
func NewClient(cfg config.IXCConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	perSecond := cfg.RatePerSecond
	if perSecond <= 0 {
		perSecond = 5
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 10
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("ixcsoft", "listar")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ixc status %d: %s", resp.StatusCode, string(raw))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type listResponse[T any] struct {
	Registros []T `json:"registros"`
}

// FetchOpenTickets pulls open service orders, newest first.
func (c *Client) FetchOpenTickets(ctx context.Context) ([]RemoteTicket, error) {
	var out listResponse[RemoteTicket]
	err := c.post(ctx, "/webservice/v1/su_oss_chamado", map[string]string{
		"qtype":     "su_oss_chamado.status",
		"query":     "A",
		"oper":      "=",
		"page":      "1",
		"rp":        "100",
		"sortname":  "su_oss_chamado.data_abertura",
		"sortorder": "desc",
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Registros, nil
}

type contractRecord struct {
	Status string `json:"status"`
	IP     string `json:"ip"`
}

// GetSubscriberStatus reports whether a subscriber's contract session is
// online. An unknown subscriber reads as offline, not as an error.
func (c *Client) GetSubscriberStatus(ctx context.Context, customerExternalID string) (SubscriberStatus, error) {
	var out listResponse[contractRecord]
	err := c.post(ctx, "/webservice/v1/cliente_contrato", map[string]string{
		"qtype": "cliente_contrato.id_cliente",
		"query": customerExternalID,
		"oper":  "=",
		"page":  "1",
		"rp":    "1",
	}, &out)
	if err != nil {
		return SubscriberStatus{}, err
	}
	if len(out.Registros) == 0 {
		return SubscriberStatus{Online: false, LastStatus: "unknown"}, nil
	}
	contract := out.Registros[0]
	return SubscriberStatus{
		Online:     contract.Status == "A",
		IP:         contract.IP,
		LastStatus: contract.Status,
	}, nil
}

// UpdateTicketStatus pushes a status change for a remote service order.
func (c *Client) UpdateTicketStatus(ctx context.Context, externalID, statusCode, note string) error {
	return c.post(ctx, "/webservice/v1/su_oss_chamado", map[string]string{
		"id":         externalID,
		"status":     statusCode,
		"observacao": note,
	}, nil)
}

// AssignTechnician records the technician assignment remotely.
func (c *Client) AssignTechnician(ctx context.Context, externalID, technicianID, technicianName string) error {
	return c.post(ctx, "/webservice/v1/su_oss_chamado", map[string]string{
		"id":           externalID,
		"tecnico_id":   technicianID,
		"tecnico_nome": technicianName,
		"status":       StatusCodeInProgress,
	}, nil)
}

// AddNote appends a free-text note to the remote service order history.
func (c *Client) AddNote(ctx context.Context, externalID, text string) error {
	return c.post(ctx, "/webservice/v1/su_oss_chamado_historico", map[string]string{
		"id_os":     externalID,
		"descricao": text,
		"tipo":      "S",
		"data_hora": time.Now().Format(time.RFC3339),
	}, nil)
}

// ScheduleTicket sets the remote scheduling timestamp.
func (c *Client) ScheduleTicket(ctx context.Context, externalID string, when time.Time) error {
	return c.post(ctx, "/webservice/v1/su_oss_chamado", map[string]string{
		"id":               externalID,
		"data_agendamento": when.Format(time.RFC3339),
		"status":           StatusCodeScheduled,
	}, nil)
}
