package k8s

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
)

const (
	autoCloseApp     = "auto-close"
	secretName       = "supportcore-secrets"
	autoCloseCommand = "/app/bin/auto-close"
)

// Client wraps the Kubernetes client
type Client struct {
	clientset kubernetes.Interface
	namespace string
	image     string
}

// NewClient creates a new Kubernetes client that launches worker jobs from image.
// If namespace is empty, defaults to "helpdesk"
func NewClient(namespace, image string) (*Client, error) {
	config, err := getKubeConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get kubeconfig: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	return NewClientFromInterface(clientset, namespace, image)
}

// NewClientFromInterface wraps an existing clientset
func NewClientFromInterface(clientset kubernetes.Interface, namespace, image string) (*Client, error) {
	if image == "" {
		return nil, fmt.Errorf("WORKER_IMAGE environment variable not set")
	}
	if namespace == "" {
		namespace = "helpdesk"
	}
	return &Client{
		clientset: clientset,
		namespace: namespace,
		image:     image,
	}, nil
}

// getKubeConfig gets the Kubernetes configuration
func getKubeConfig() (*rest.Config, error) {
	// Try in-cluster config first (when running inside Kubernetes)
	config, err := rest.InClusterConfig()
	if err == nil {
		return config, nil
	}

	// Fall back to kubeconfig file
	var kubeconfig string
	if home := homedir.HomeDir(); home != "" {
		kubeconfig = filepath.Join(home, ".kube", "config")
	}

	if envKubeconfig := os.Getenv("KUBECONFIG"); envKubeconfig != "" {
		kubeconfig = envKubeconfig
	}

	config, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build config: %w", err)
	}

	return config, nil
}

// Dispatch launches the per-mailbox auto-close job
func (c *Client) Dispatch(ctx context.Context, mailboxID int64) error {
	_, err := c.CreateAutoCloseJob(ctx, mailboxID)
	return err
}

// CreateAutoCloseJob creates a Kubernetes Job that auto-closes one mailbox and returns its name
func (c *Client) CreateAutoCloseJob(ctx context.Context, mailboxID int64) (string, error) {
	jobName := fmt.Sprintf("auto-close-%d-%s", mailboxID, uuid.NewString()[:8])
	mailbox := strconv.FormatInt(mailboxID, 10)

	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      jobName,
			Namespace: c.namespace,
			Labels: map[string]string{
				"app":        autoCloseApp,
				"job-type":   "automation",
				"mailbox-id": mailbox,
			},
		},
		Spec: batchv1.JobSpec{
			BackoffLimit:            int32Ptr(3),
			TTLSecondsAfterFinished: int32Ptr(86400),
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: map[string]string{
						"app":      autoCloseApp,
						"job-type": "automation",
					},
				},
				Spec: c.buildPodSpec(mailboxID),
			},
		},
	}

	if _, err := c.clientset.BatchV1().Jobs(c.namespace).Create(ctx, job, metav1.CreateOptions{}); err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}

	return jobName, nil
}

// buildPodSpec builds the pod spec for the per-mailbox auto-close job
func (c *Client) buildPodSpec(mailboxID int64) corev1.PodSpec {
	return corev1.PodSpec{
		RestartPolicy: corev1.RestartPolicyNever,
		Containers: []corev1.Container{
			{
				Name:    autoCloseApp,
				Image:   c.image,
				Command: []string{autoCloseCommand, fmt.Sprintf("-mailbox=%d", mailboxID)},
				Env: []corev1.EnvVar{
					secretEnv("DATABASE_URL", "database-url"),
					{
						Name:  "LOG_LEVEL",
						Value: "info",
					},
				},
				Resources: corev1.ResourceRequirements{
					Requests: corev1.ResourceList{
						corev1.ResourceMemory: resourceQuantity("64Mi"),
						corev1.ResourceCPU:    resourceQuantity("50m"),
					},
					Limits: corev1.ResourceList{
						corev1.ResourceMemory: resourceQuantity("256Mi"),
						corev1.ResourceCPU:    resourceQuantity("500m"),
					},
				},
			},
		},
	}
}

// Helper functions

func secretEnv(name, key string) corev1.EnvVar {
	return corev1.EnvVar{
		Name: name,
		ValueFrom: &corev1.EnvVarSource{
			SecretKeyRef: &corev1.SecretKeySelector{
				LocalObjectReference: corev1.LocalObjectReference{
					Name: secretName,
				},
				Key: key,
			},
		},
	}
}

func int32Ptr(i int32) *int32 {
	return &i
}

func resourceQuantity(value string) resource.Quantity {
	qty, err := resource.ParseQuantity(value)
	if err != nil {
		// Return zero quantity on error
		return resource.Quantity{}
	}
	return qty
}
