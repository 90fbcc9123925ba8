package kubernetes

import "github.com/five82/vapor-console/internal/api"

// Kind describes a resource type the backend lists under /kubernetes.
type Kind struct {
	// Resource is the list path segment, e.g. "pods".
	Resource   string
	ListKey    string
	APIVersion string
	Kind       string
	Namespaced bool
	// ItemPath overrides Resource for single-item calls where the backend
	// uses a shorter segment.
	ItemPath string

	// base replaces Resource as the path for kinds nested under another
	// resource, such as custom resource instances.
	base []string
}

func (k Kind) itemSegment() string {
	if k.ItemPath != "" {
		return k.ItemPath
	}
	return k.Resource
}

func (k Kind) listPath() string {
	if len(k.base) > 0 {
		return api.KubernetesPath(k.base...)
	}
	return api.KubernetesPath(k.Resource)
}

func (k Kind) itemPath(namespace, name string) string {
	elems := []string{k.itemSegment()}
	if len(k.base) > 0 {
		elems = append([]string(nil), k.base...)
	}
	if k.Namespaced || len(k.base) > 0 {
		elems = append(elems, namespace)
	}
	return api.KubernetesPath(append(elems, name)...)
}

// CRDInstances describes the instances of the custom resource definition
// named crd, e.g. "certificates.cert-manager.io".
func CRDInstances(crd, apiVersion, kind string, namespaced bool) Kind {
	return Kind{
		Resource:   crd,
		ListKey:    "instances",
		APIVersion: apiVersion,
		Kind:       kind,
		Namespaced: namespaced,
		base:       []string{"customresourcedefinitions", crd, "instances"},
	}
}

var (
	Namespaces             = Kind{Resource: "namespaces", ListKey: "namespaces", APIVersion: "v1", Kind: "Namespace"}
	Nodes                  = Kind{Resource: "nodes", ListKey: "nodes", APIVersion: "v1", Kind: "Node"}
	Pods                   = Kind{Resource: "pods", ListKey: "pods", APIVersion: "v1", Kind: "Pod", Namespaced: true}
	Deployments            = Kind{Resource: "deployments", ListKey: "deployments", APIVersion: "apps/v1", Kind: "Deployment", Namespaced: true}
	StatefulSets           = Kind{Resource: "statefulsets", ListKey: "statefulsets", APIVersion: "apps/v1", Kind: "StatefulSet", Namespaced: true}
	DaemonSets             = Kind{Resource: "daemonsets", ListKey: "daemonsets", APIVersion: "apps/v1", Kind: "DaemonSet", Namespaced: true}
	Jobs                   = Kind{Resource: "jobs", ListKey: "jobs", APIVersion: "batch/v1", Kind: "Job", Namespaced: true}
	CronJobs               = Kind{Resource: "cronjobs", ListKey: "cronjobs", APIVersion: "batch/v1", Kind: "CronJob", Namespaced: true}
	Services               = Kind{Resource: "services", ListKey: "services", APIVersion: "v1", Kind: "Service", Namespaced: true}
	Ingresses              = Kind{Resource: "ingresses", ListKey: "ingresses", APIVersion: "networking.k8s.io/v1", Kind: "Ingress", Namespaced: true}
	PersistentVolumes      = Kind{Resource: "persistentvolumes", ListKey: "pvs", APIVersion: "v1", Kind: "PersistentVolume", ItemPath: "pvs"}
	PersistentVolumeClaims = Kind{Resource: "persistentvolumeclaims", ListKey: "pvcs", APIVersion: "v1", Kind: "PersistentVolumeClaim", Namespaced: true, ItemPath: "pvcs"}
	ConfigMaps             = Kind{Resource: "configmaps", ListKey: "configmaps", APIVersion: "v1", Kind: "ConfigMap", Namespaced: true}
	Secrets                = Kind{Resource: "secrets", ListKey: "secrets", APIVersion: "v1", Kind: "Secret", Namespaced: true}
	CustomResources        = Kind{Resource: "customresourcedefinitions", ListKey: "crds", APIVersion: "apiextensions.k8s.io/v1", Kind: "CustomResourceDefinition"}
)

// DefaultKinds are the kinds a Service tracks when none are configured.
var DefaultKinds = []Kind{
	Namespaces, Nodes, Pods, Deployments, StatefulSets, DaemonSets, Jobs, CronJobs,
	Services, Ingresses, PersistentVolumes, PersistentVolumeClaims, ConfigMaps, Secrets,
	CustomResources,
}
