// Package mpesa предоставляет клиент платёжного шлюза M-Pesa (STK push).
package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrAuth возвращается при неуспешном получении токена доступа.
var (
	ErrAuth = errors.New("mpesa: authorization failed")
	// ErrRejected возвращается, если шлюз синхронно отклонил запрос на оплату.
	ErrRejected = errors.New("mpesa: push rejected by gateway")
	// ErrUnavailable возвращается при сетевой ошибке или таймауте. Вызывающий
	// код может повторить запрос; сам клиент повторов не делает.
	ErrUnavailable = errors.New("mpesa: gateway unavailable")
)

// Config содержит учётные данные и адреса шлюза.
type Config struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
}

// Client инкапсулирует HTTP-взаимодействие со шлюзом M-Pesa. Состояние
// бронирований и платежей клиент не изменяет.
type Client struct {
	cfg        Config
	httpClient *http.Client
	now        func() time.Time
}

// PushResult описывает синхронный ответ шлюза на запрос STK push.
type PushResult struct {
	MerchantRequestID string
	CheckoutRequestID string
}

// Callback описывает тело webhook-уведомления шлюза о результате платежа.
// ResultCode 0 означает успешный платёж.
type Callback struct {
	MerchantRequestID string `json:"MerchantRequestID"`
	ResultCode        int    `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
}

// NewClient создаёт клиент шлюза с таймаутом на внешние вызовы.
func NewClient(cfg Config) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		now: time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// GetAccessToken получает OAuth-токен по схеме client credentials.
func (c *Client) GetAccessToken(ctx context.Context) (string, error) {
	url := c.baseURL() + "/oauth/v1/generate?grant_type=client_credentials"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuth, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: unexpected status %d", ErrAuth, resp.StatusCode)
	}

	var result tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrAuth, err)
	}
	if result.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrAuth)
	}

	return result.AccessToken, nil
}

type pushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type pushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
}

// PushPayment отправляет запрос STK push на указанный номер телефона.
// amount — сумма в целых шиллингах, phoneNumber — номер в формате 254XXXXXXXXX,
// accountReference — ссылка на оплачиваемое бронирование.
func (c *Client) PushPayment(ctx context.Context, token string, amount int64, phoneNumber, accountReference string) (*PushResult, error) {
	timestamp := c.now().UTC().Format("20060102150405")
	password := base64.StdEncoding.EncodeToString(
		[]byte(c.cfg.ShortCode + c.cfg.Passkey + timestamp),
	)

	body, err := json.Marshal(pushRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            amount,
		PartyA:            phoneNumber,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       phoneNumber,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  accountReference,
		TransactionDesc:   "Payment for booking",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal push request: %w", err)
	}

	url := c.baseURL() + "/mpesa/stkpush/v1/processrequest"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}

	var result pushResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrRejected, err)
	}

	if result.ResponseCode != "0" {
		return nil, fmt.Errorf("%w: code %s (%s)", ErrRejected, result.ResponseCode, result.ResponseDescription)
	}

	return &PushResult{
		MerchantRequestID: result.MerchantRequestID,
		CheckoutRequestID: result.CheckoutRequestID,
	}, nil
}

func (c *Client) baseURL() string {
	base := c.cfg.BaseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	return base
}
