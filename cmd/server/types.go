package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// AnswerRequest is the request body for POST /api/{table}/{email}/rows/{index}/answer
type AnswerRequest struct {
	Answer AnswerValue `json:"answer"`
}

// AnswerValue accepts either a JSON string ("a", "4") or a number (4).
type AnswerValue string

func (a *AnswerValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = AnswerValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("answer must be a string or a number")
	}
	if _, err := strconv.ParseFloat(string(n), 64); err != nil {
		return fmt.Errorf("answer must be a string or a number")
	}
	*a = AnswerValue(n)
	return nil
}

// AnswerResponse is returned after an answer is recorded
type AnswerResponse struct {
	Table  string `json:"table"`
	Email  string `json:"email"`
	Index  int    `json:"index"`
	Answer string `json:"answer"`
	Next   int    `json:"next"`
}

// MosRowDTO is the JSON form of a MOS row
type MosRowDTO struct {
	Index     int    `json:"index"`
	Email     string `json:"email"`
	AudioFile string `json:"audio_file"`
	Natural   string `json:"natural"`
	Answer    string `json:"answer"`
}

// XabRowDTO is the JSON form of an XAB row
type XabRowDTO struct {
	Index   int    `json:"index"`
	Email   string `json:"email"`
	AudioX  string `json:"audio_file_x"`
	AudioA  string `json:"audio_file_a"`
	AudioB  string `json:"audio_file_b"`
	AccentX string `json:"accent_x"`
	AccentA string `json:"accent_a"`
	AccentB string `json:"accent_b"`
	Natural string `json:"natural"`
	Answer  string `json:"answer"`
}

// TotalResponse is the response for GET /api/{table}/{email}/total
type TotalResponse struct {
	Table string `json:"table"`
	Email string `json:"email"`
	Total int    `json:"total"`
}

// ProgressResponse is the response for GET /api/{table}/{email}/progress
type ProgressResponse struct {
	Table    string `json:"table"`
	Email    string `json:"email"`
	Answered int    `json:"answered"`
	Total    int    `json:"total"`
	Next     int    `json:"next"`
	Done     bool   `json:"done"`
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
