package domain

import "time"

// DeviceSession is one remembered login device. At most 5 are kept,
// exactly one flagged current.
type DeviceSession struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	UserAgent string `json:"user_agent,omitempty"`
	IP        string `json:"ip,omitempty"`
	LoginTime string `json:"login_time"`
	Current   bool   `json:"current"`
}

// CustomModelKind distinguishes reply models from embedding models.
type CustomModelKind string

const (
	ModelKindReply     CustomModelKind = "reply"
	ModelKindEmbedding CustomModelKind = "embedding"
)

// CustomModel is a user-registered model descriptor.
type CustomModel struct {
	ID       string          `json:"id"`
	Provider string          `json:"provider"`
	ModelID  string          `json:"model_id"`
	APIKey   string          `json:"api_key"`
	Kind     CustomModelKind `json:"kind"`
	BaseURL  string          `json:"base_url,omitempty"`
}

// AISettings are the per-user automation knobs.
type AISettings struct {
	ReplyModel        string `json:"reply_model,omitempty"`
	EmbeddingModel    string `json:"embedding_model,omitempty"`
	AutoProcess       bool   `json:"auto_process"`
	AutoSend          bool   `json:"auto_send"`
	CheckInterval     int    `json:"check_interval,omitempty"` // minutes
	BatchSize         int    `json:"batch_size,omitempty"`
	SingleConcurrency int    `json:"single_concurrency,omitempty"`
	Signature         string `json:"signature,omitempty"`
	Greeting          string `json:"greeting,omitempty"`
	Closing           string `json:"closing,omitempty"`
}

// ChatMessage is one entry of the assistant chat history, bounded to 50.
type ChatMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// User is a registered account. UserID is assigned once at registration and
// never changes; Username is a mutable display handle.
type User struct {
	UserID        string          `json:"user_id"`
	Username      string          `json:"-"`        // map key in user_data.json
	Password      string          `json:"password"` // bcrypt hash
	Email         string          `json:"email,omitempty"`
	EmailAuthCode string          `json:"emailAuthCode,omitempty"`
	Devices       []DeviceSession `json:"devices,omitempty"`
	Preferences   map[string]any  `json:"preferences,omitempty"`
	Settings      AISettings      `json:"settings"`
	CustomModels  []CustomModel   `json:"customModels,omitempty"`
	ChatHistory   []ChatMessage   `json:"chatHistory,omitempty"`
	RegisterTime  string          `json:"registerTime,omitempty"`
	LastLogin     string          `json:"lastLogin,omitempty"`
	Avatar        string          `json:"avatar,omitempty"`
}

const (
	maxDevices     = 5
	maxChatHistory = 50
)

// TouchDevice records a login device, marking it current and demoting the
// rest. The list keeps the 5 most recent entries.
func (u *User) TouchDevice(id, name, userAgent, ip string) {
	for i := range u.Devices {
		u.Devices[i].Current = false
	}
	d := DeviceSession{
		ID:        id,
		Name:      name,
		UserAgent: userAgent,
		IP:        ip,
		LoginTime: time.Now().Format("2006-01-02 15:04:05"),
		Current:   true,
	}
	// drop a previous entry for the same device
	for i := range u.Devices {
		if u.Devices[i].ID == id {
			u.Devices = append(u.Devices[:i], u.Devices[i+1:]...)
			break
		}
	}
	u.Devices = append([]DeviceSession{d}, u.Devices...)
	if len(u.Devices) > maxDevices {
		u.Devices = u.Devices[:maxDevices]
	}
}

// AppendChat records one chat turn, trimming oldest entries past the bound.
func (u *User) AppendChat(role, content string) {
	u.ChatHistory = append(u.ChatHistory, ChatMessage{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().Format("2006-01-02 15:04:05"),
	})
	if len(u.ChatHistory) > maxChatHistory {
		u.ChatHistory = u.ChatHistory[len(u.ChatHistory)-maxChatHistory:]
	}
}

// EffectiveCheckInterval returns the poll interval in minutes, defaulted.
func (s AISettings) EffectiveCheckInterval() int {
	if s.CheckInterval <= 0 {
		return 5
	}
	return s.CheckInterval
}

// ClampedBatchSize returns the batch size clamped to [1, 30].
func (s AISettings) ClampedBatchSize() int {
	n := s.BatchSize
	if n < 1 {
		n = 4
	}
	if n > 30 {
		n = 30
	}
	return n
}

// ClampedSingleConcurrency returns single-item concurrency clamped to [2, 20].
func (s AISettings) ClampedSingleConcurrency() int {
	n := s.SingleConcurrency
	if n < 2 {
		n = 2
	}
	if n > 20 {
		n = 20
	}
	return n
}
