package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openapi "github.com/alibabacloud-go/darabonba-openapi/v2/client"
	dypnsapi "github.com/alibabacloud-go/dypnsapi-20170525/v3/client"
	util "github.com/alibabacloud-go/tea-utils/v2/service"
	"github.com/alibabacloud-go/tea/tea"

	"clearr.app/backend/internal/core"
)

const defaultAliyunEndpoint = "dypnsapi.aliyuncs.com"

type AliyunConfig struct {
	AccessKeyID     string
	AccessKeySecret string
	Endpoint        string
	SignName        string
	TemplateCode    string
	CountryCode     string
}

// smsVerifyAPI is the subset of the dypnsapi client the verifier calls.
type smsVerifyAPI interface {
	SendSmsVerifyCodeWithOptions(*dypnsapi.SendSmsVerifyCodeRequest, *util.RuntimeOptions) (*dypnsapi.SendSmsVerifyCodeResponse, error)
	CheckSmsVerifyCodeWithOptions(*dypnsapi.CheckSmsVerifyCodeRequest, *util.RuntimeOptions) (*dypnsapi.CheckSmsVerifyCodeResponse, error)
}

// AliyunVerifier uses the Aliyun phone number verification service,
// which generates, delivers and checks the code on its side.
type AliyunVerifier struct {
	api          smsVerifyAPI
	signName     string
	templateCode string
	countryCode  string
}

func NewAliyunVerifier(cfg AliyunConfig) (*AliyunVerifier, error) {
	if cfg.AccessKeyID == "" || cfg.AccessKeySecret == "" {
		return nil, errors.New("aliyun access key is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultAliyunEndpoint
	}
	client, err := dypnsapi.NewClient(&openapi.Config{
		AccessKeyId:     tea.String(cfg.AccessKeyID),
		AccessKeySecret: tea.String(cfg.AccessKeySecret),
		Endpoint:        tea.String(endpoint),
	})
	if err != nil {
		return nil, fmt.Errorf("create aliyun client: %w", err)
	}
	return newAliyunVerifier(client, cfg), nil
}

func newAliyunVerifier(api smsVerifyAPI, cfg AliyunConfig) *AliyunVerifier {
	country := strings.TrimPrefix(strings.TrimSpace(cfg.CountryCode), "+")
	if country == "" {
		country = "86"
	}
	return &AliyunVerifier{
		api:          api,
		signName:     cfg.SignName,
		templateCode: cfg.TemplateCode,
		countryCode:  country,
	}
}

// nationalNumber strips the leading "+" and the configured country code.
func (v *AliyunVerifier) nationalNumber(phone string) string {
	digits := strings.TrimPrefix(phone, "+")
	if strings.HasPrefix(digits, v.countryCode) && len(digits) > len(v.countryCode)+6 {
		return digits[len(v.countryCode):]
	}
	return digits
}

func runtimeOptions(ctx context.Context) *util.RuntimeOptions {
	opts := &util.RuntimeOptions{Autoretry: tea.Bool(false)}
	if deadline, ok := ctx.Deadline(); ok {
		ms := int(time.Until(deadline).Milliseconds())
		if ms > 0 {
			opts.ReadTimeout = tea.Int(ms)
			opts.ConnectTimeout = tea.Int(ms)
		}
	}
	return opts
}

func (v *AliyunVerifier) SendCode(ctx context.Context, phone string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	resp, err := v.api.SendSmsVerifyCodeWithOptions(&dypnsapi.SendSmsVerifyCodeRequest{
		PhoneNumber:   tea.String(v.nationalNumber(phone)),
		CountryCode:   tea.String(v.countryCode),
		SignName:      tea.String(v.signName),
		TemplateCode:  tea.String(v.templateCode),
		TemplateParam: tea.String(`{"code":"##code##","min":"5"}`),
		CodeLength:    tea.Int64(otpCodeLength),
		ValidTime:     tea.Int64(int64(otpCodeTTL.Seconds())),
		Interval:      tea.Int64(int64(otpResendAfter.Seconds())),
	}, runtimeOptions(ctx))
	if err != nil {
		return fmt.Errorf("aliyun send verify code: %w", err)
	}
	if resp == nil || resp.Body == nil {
		return errors.New("aliyun send verify code: empty response")
	}
	switch code := tea.StringValue(resp.Body.Code); {
	case code == "biz.FREQUENCY" || code == "isv.BUSINESS_LIMIT_CONTROL":
		return fmt.Errorf("%w: %s", core.ErrRateLimited, tea.StringValue(resp.Body.Message))
	case !tea.BoolValue(resp.Body.Success) || code != "OK":
		return fmt.Errorf("aliyun send verify code: %s: %s", tea.StringValue(resp.Body.Code), tea.StringValue(resp.Body.Message))
	}
	return nil
}

func (v *AliyunVerifier) CheckCode(ctx context.Context, phone, code string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	resp, err := v.api.CheckSmsVerifyCodeWithOptions(&dypnsapi.CheckSmsVerifyCodeRequest{
		PhoneNumber: tea.String(v.nationalNumber(phone)),
		CountryCode: tea.String(v.countryCode),
		VerifyCode:  tea.String(code),
	}, runtimeOptions(ctx))
	if err != nil {
		return false, fmt.Errorf("aliyun check verify code: %w", err)
	}
	if resp == nil || resp.Body == nil {
		return false, errors.New("aliyun check verify code: empty response")
	}
	if tea.StringValue(resp.Body.Code) != "OK" {
		return false, fmt.Errorf("aliyun check verify code: %s: %s", tea.StringValue(resp.Body.Code), tea.StringValue(resp.Body.Message))
	}
	if resp.Body.Model == nil {
		return false, nil
	}
	return tea.StringValue(resp.Body.Model.VerifyResult) == "PASS", nil
}
