package channel

import (
	"net/http"

	"github.com/hitoshi/newsdrop/internal/model"
)

// Registry はチャネル種別からアダプタを引くレジストリ。
// 未登録の種別（teams等）はGetがnilを返し、呼び出し元が
// "unsupported"の結果として記録する。
type Registry struct {
	adapters map[model.ChannelKind]Adapter
}

// NewRegistry は空のRegistryを生成する。
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[model.ChannelKind]Adapter)}
}

// NewDefaultRegistry はSlackと汎用Webhookのアダプタを登録した
// Registryを生成する。Teamsは意図的に未登録（アダプタ未実装）。
func NewDefaultRegistry(httpClient *http.Client) *Registry {
	r := NewRegistry()
	r.Register(NewSlackAdapter(httpClient))
	r.Register(NewWebhookAdapter(httpClient))
	return r
}

// Register はアダプタを種別をキーとして登録する。
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Kind()] = a
}

// Get は種別に対応するアダプタを返す。未登録の場合はnilを返す。
func (r *Registry) Get(kind model.ChannelKind) Adapter {
	return r.adapters[kind]
}
