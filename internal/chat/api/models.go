package chatapi

type createDirectRequest struct {
	UserID string `json:"user_id"`
}

type createGroupRequest struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Discoverable bool     `json:"discoverable"`
	Members      []string `json:"members"`
}

type updateGroupRequest struct {
	Title        *string `json:"title"`
	Description  *string `json:"description"`
	Discoverable *bool   `json:"discoverable"`
}

type addMemberRequest struct {
	UserID string `json:"user_id"`
}

type sendMessageRequest struct {
	Body      string `json:"body"`
	ReplyToID string `json:"reply_to_id"`
}
