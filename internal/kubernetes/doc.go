// Package kubernetes keeps client-side collections of the cluster resources
// the backend exposes under /kubernetes. Entities are held as
// unstructured.Unstructured, keyed "namespace/name", so list rows and full
// objects share one representation.
//
// Custom resources are listed through CustomResources; CRDInstances builds a
// Kind for the instances of one definition.
package kubernetes
