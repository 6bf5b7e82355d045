package accesscloud

import "encoding/json"

// Vendor gateway endpoints. Paths are fixed by the cloud API contract.
const (
	tokenPath     = "/api/hccgw/platform/v1/token/get"
	subscribePath = "/api/hccgw/rawmsg/v1/mq/subscribe"
	messagesPath  = "/api/hccgw/rawmsg/v1/mq/messages"
	confirmPath   = "/api/hccgw/rawmsg/v1/mq/messages/complete"
)

const (
	// codeSuccess is the vendor envelope's success marker.
	codeSuccess = "0"
	// codeTokenExpired is the vendor's mid-call credential rejection.
	codeTokenExpired = "OPEN000006"
	// tokenHeader carries the credential on every authenticated call.
	tokenHeader = "Token"
)

const (
	subscribeTypeCancel = 0
	subscribeTypeCreate = 1
)

// apiEnvelope is the uniform vendor response wrapper.
type apiEnvelope struct {
	ErrorCode string          `json:"errorCode"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type tokenRequest struct {
	AppKey    string `json:"appKey"`
	SecretKey string `json:"secretKey"`
}

type tokenData struct {
	AccessToken string `json:"accessToken"`
	ExpireTime  int64  `json:"expireTime"`
	UserID      string `json:"userId"`
	AreaDomain  string `json:"areaDomain,omitempty"`
}

type subscribeRequest struct {
	SubscribeType int      `json:"subscribeType"`
	MsgType       []string `json:"msgType,omitempty"`
}

type confirmRequest struct {
	BatchID string `json:"batchId"`
}
