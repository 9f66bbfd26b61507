package ndax

import (
	"strconv"

	"github.com/shopspring/decimal"
)

type apiError struct {
	Result    bool   `json:"result"`
	ErrorMsg  string `json:"errormsg"`
	ErrorCode int    `json:"errorcode"`
	Detail    string `json:"detail"`
}

type APIError struct {
	Code int
	Msg  string
}

func (e APIError) Error() string {
	return "ndax api error " + strconv.Itoa(e.Code) + ": " + e.Msg
}

type pingResponse struct {
	Msg string `json:"msg"`
}

type accountPositionResponse struct {
	OMSID         int64           `json:"OMSId"`
	AccountID     int64           `json:"AccountId"`
	ProductSymbol string          `json:"ProductSymbol"`
	ProductID     int64           `json:"ProductId"`
	Amount        decimal.Decimal `json:"Amount"`
	Hold          decimal.Decimal `json:"Hold"`
}

type instrumentResponse struct {
	InstrumentID  int64  `json:"InstrumentId"`
	Symbol        string `json:"Symbol"`
	Product1      string `json:"Product1Symbol"`
	Product2      string `json:"Product2Symbol"`
	SessionStatus string `json:"SessionStatus"`
}
