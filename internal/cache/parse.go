package cache

import "encoding/json"

type blockhashResult struct {
	Value struct {
		Blockhash string `json:"blockhash"`
	} `json:"value"`
}

func parseBlockhash(raw json.RawMessage) (string, error) {
	var res blockhashResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", err
	}
	return res.Value.Blockhash, nil
}

type balanceResult struct {
	Value int64 `json:"value"`
}

func parseBalance(raw json.RawMessage) (int64, error) {
	var res balanceResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return 0, err
	}
	return res.Value, nil
}
