// Package chat is the conversational front-end of the key pool: it turns
// operator messages and button presses into pool operations and renders the
// results as chat replies with keyboards.
//
// The package is transport neutral. A webhook or a bot poller converts its
// own payloads into Update values and sends the returned Replies.
package chat

// Callback data prefixes and values carried by inline buttons.
const (
	CallbackNext     = "next"
	CallbackBack     = "back"
	CallbackDetails  = "details"
	CallbackExhaust  = "exhaust:"
	CallbackActivate = "activate:"
	CallbackDelete   = "delete:"
)

// Update is one inbound event from an operator: either a text message or a
// button press.
type Update struct {
	OperatorID string `json:"operatorId"`
	Text       string `json:"text,omitempty"`
	Callback   string `json:"callback,omitempty"`
}

// Button is an inline button attached to a single reply.
type Button struct {
	Text string `json:"text"`
	Data string `json:"data"`
}

// Reply is one outbound message.
type Reply struct {
	Text     string `json:"text"`
	Markdown bool   `json:"markdown,omitempty"`
	// Keyboard replaces the operator's reply keyboard.
	Keyboard [][]string `json:"keyboard,omitempty"`
	// Inline buttons are attached to this message only.
	Inline [][]Button `json:"inline,omitempty"`
}

// Response is everything produced for one Update.
type Response struct {
	Replies []Reply `json:"replies"`
	// Notice is a short acknowledgement for a button press.
	Notice string `json:"notice,omitempty"`
	// Dismiss asks the transport to remove the message whose button was pressed.
	Dismiss bool `json:"dismiss,omitempty"`
}

func (r *Response) add(replies ...Reply) {
	r.Replies = append(r.Replies, replies...)
}
