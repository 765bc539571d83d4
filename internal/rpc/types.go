package rpc

// PrinterOptionRequest asks for the printer roster stream.
type PrinterOptionRequest struct{}

// PrinterOption describes one printer a client can connect to.
type PrinterOption struct {
	DevName string `json:"dev_name"`
	DevID   string `json:"dev_id"`
	Model   string `json:"model"`
}

// PrinterOptionList is one roster emission.
type PrinterOptionList struct {
	Options []PrinterOption `json:"options"`
}

// ConnectRequest opens a session to a printer.
type ConnectRequest struct {
	DevID string `json:"dev_id"`
}

// RecvMessage is one device report. Connected is false on the final
// message of a stream.
type RecvMessage struct {
	Connected bool   `json:"connected"`
	DevID     string `json:"dev_id"`
	Data      string `json:"data"`
}

// SendMessageRequest carries a command for a printer.
type SendMessageRequest struct {
	DevID string `json:"dev_id"`
	Data  string `json:"data"`
}

// SendMessageResponse acknowledges that a command was queued.
type SendMessageResponse struct {
	Success bool `json:"success"`
}

// UploadFileRequest carries a file for a printer. Blob is base64 on the wire.
type UploadFileRequest struct {
	DevID      string `json:"dev_id"`
	Blob       []byte `json:"blob"`
	RemotePath string `json:"remote_path"`
}

// UploadFileResponse reports whether the printer accepted the file.
type UploadFileResponse struct {
	Success bool `json:"success"`
}
