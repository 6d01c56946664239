package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	verify "github.com/twilio/twilio-go/rest/verify/v2"
)

// Twilio answers a check against an unknown, expired or already approved
// verification with this code.
const twilioVerificationNotFound = 20404

// TwilioVerifier delivers and checks codes through the Twilio Verify API.
type TwilioVerifier struct {
	api        *verify.ApiService
	serviceSID string
}

func NewTwilioVerifier(accountSID, authToken, serviceSID string, timeout time.Duration) *TwilioVerifier {
	return newTwilioVerifier(accountSID, authToken, serviceSID, &http.Client{Timeout: timeout})
}

func newTwilioVerifier(accountSID, authToken, serviceSID string, httpClient *http.Client) *TwilioVerifier {
	base := &client.Client{
		Credentials: client.NewCredentials(accountSID, authToken),
		HTTPClient:  httpClient,
	}
	base.SetAccountSid(accountSID)
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{Client: base})
	return &TwilioVerifier{api: rest.VerifyV2, serviceSID: serviceSID}
}

func twilioError(err error) error {
	var restErr *client.TwilioRestError
	if errors.As(err, &restErr) {
		return fmt.Errorf("twilio verify error %d: %s", restErr.Code, restErr.Message)
	}
	return fmt.Errorf("twilio verify request: %w", err)
}

func isTwilioNotFound(err error) bool {
	var restErr *client.TwilioRestError
	return errors.As(err, &restErr) &&
		(restErr.Code == twilioVerificationNotFound || restErr.Status == http.StatusNotFound)
}

// The SDK calls take no context; a cancelled request is dropped before it
// reaches Twilio and the http.Client timeout bounds the rest.
func (v *TwilioVerifier) SendCode(ctx context.Context, phone string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := &verify.CreateVerificationParams{}
	params.SetTo(phone)
	params.SetChannel("sms")
	if _, err := v.api.CreateVerification(v.serviceSID, params); err != nil {
		return twilioError(err)
	}
	return nil
}

// CheckCode returns true only when Twilio reports the verification as
// approved. An unknown or expired verification is a failed check.
func (v *TwilioVerifier) CheckCode(ctx context.Context, phone, code string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	params := &verify.CreateVerificationCheckParams{}
	params.SetTo(phone)
	params.SetCode(code)
	resp, err := v.api.CreateVerificationCheck(v.serviceSID, params)
	if err != nil {
		if isTwilioNotFound(err) {
			return false, nil
		}
		return false, twilioError(err)
	}
	return resp.Status != nil && *resp.Status == "approved", nil
}
