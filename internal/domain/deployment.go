package domain

import "time"

// Deployment — запущенный экземпляр топологии.
//
// Deployment принадлежит внешней системе; control plane читает его
// топологию, workflows и плагины и переписывает топологию при commit/откате.
type Deployment struct {
	ID          string   `json:"id" yaml:"id"`
	BlueprintID string   `json:"blueprint_id" yaml:"blueprint_id"`
	Topology    Topology `json:"topology" yaml:"topology"`

	// Workflows — объявленные workflows (install, update, uninstall, ...).
	Workflows map[string]WorkflowDescriptor `json:"workflows,omitempty" yaml:"workflows,omitempty"`

	// Plugins — плагины, в которых реализованы операции workflows.
	Plugins []PluginDescriptor `json:"plugins,omitempty" yaml:"plugins,omitempty"`

	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// WorkflowDescriptor — объявление workflow: операция и плагин, где она живёт.
type WorkflowDescriptor struct {
	Operation  string         `json:"operation" yaml:"operation"`
	Plugin     string         `json:"plugin" yaml:"plugin"`
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// PluginDescriptor — описание плагина.
type PluginDescriptor struct {
	Name           string `json:"name" yaml:"name"`
	PackageName    string `json:"package_name,omitempty" yaml:"package_name,omitempty"`
	PackageVersion string `json:"package_version,omitempty" yaml:"package_version,omitempty"`
}

// Стандартные workflows, которые запускает commit.
const (
	WorkflowInstall   = "install"
	WorkflowUpdate    = "update"
	WorkflowUninstall = "uninstall"
)

// Clone возвращает глубокую копию deployment.
func (d *Deployment) Clone() *Deployment {
	out := *d
	out.Topology = d.Topology.Clone()
	if d.Workflows != nil {
		out.Workflows = make(map[string]WorkflowDescriptor, len(d.Workflows))
		for name, wf := range d.Workflows {
			wf.Parameters = cloneMap(wf.Parameters)
			out.Workflows[name] = wf
		}
	}
	if d.Plugins != nil {
		out.Plugins = append([]PluginDescriptor(nil), d.Plugins...)
	}
	return &out
}

