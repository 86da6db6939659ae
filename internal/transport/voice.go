package transport

import (
	"encoding/xml"
)

// VoiceResponse is the document returned to an inbound call webhook
type VoiceResponse struct {
	XMLName xml.Name `xml:"Response"`
	Say     *Say     `xml:"Say,omitempty"`
}

// Say reads text to the caller
type Say struct {
	Voice string `xml:"voice,attr,omitempty"`
	Text  string `xml:",chardata"`
}

// SayResponse renders a response that reads text and hangs up
func SayResponse(text string) ([]byte, error) {
	out, err := xml.Marshal(VoiceResponse{Say: &Say{Voice: "woman", Text: text}})
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}
