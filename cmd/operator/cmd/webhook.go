package cmd

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/stochasticquant/kube-devops-operator/internal/admission"
	"github.com/stochasticquant/kube-devops-operator/internal/config"
	"github.com/stochasticquant/kube-devops-operator/internal/k8sclient"
	"github.com/stochasticquant/kube-devops-operator/internal/operrors"
	"github.com/stochasticquant/kube-devops-operator/internal/policy"
)

var (
	webhookCertOut string
	webhookKeyOut  string
	webhookCertDNS string
)

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Admission webhook server and TLS/configuration helpers (§4.D)",
}

var webhookServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the validating admission webhook over HTTPS",
	RunE:  runWebhookServe,
}

var webhookCertGenerateCmd = &cobra.Command{
	Use:   "cert-generate",
	Short: "Generate a self-signed CA and server certificate for the webhook listener",
	RunE:  runWebhookCertGenerate,
}

var webhookInstallConfigCmd = &cobra.Command{
	Use:   "install-config",
	Short: "Print the ValidatingWebhookConfiguration manifest",
	RunE:  runWebhookInstallConfig,
}

func init() {
	webhookCertGenerateCmd.Flags().StringVar(&webhookCertOut, "cert-out", "tls.crt", "path to write the server certificate")
	webhookCertGenerateCmd.Flags().StringVar(&webhookKeyOut, "key-out", "tls.key", "path to write the server private key")
	webhookCertGenerateCmd.Flags().StringVar(&webhookCertDNS, "dns-name", "kube-devops-operator-webhook.devops-system.svc", "DNS name the certificate covers")

	webhookCmd.AddCommand(webhookServeCmd, webhookCertGenerateCmd, webhookInstallConfigCmd)
	rootCmd.AddCommand(webhookCmd)
}

func runWebhookServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(ConfigPath())
	if err != nil {
		return operrors.NewConfiguration("webhook.loadConfig", err)
	}
	if cfg.Webhook.TLSCertPath == "" || cfg.Webhook.TLSKeyPath == "" {
		return operrors.NewConfiguration("webhook.serve", fmt.Errorf("webhook.tlsCertPath and webhook.tlsKeyPath are required"))
	}

	clients, err := k8sclient.New()
	if err != nil {
		return operrors.NewConfiguration("webhook.k8sclient", err)
	}

	minSeverity := policy.Severity(cfg.Webhook.MinSeverity)
	server := &admission.Server{
		MinSeverity: minSeverity,
		Lookup: func(namespace string) *policy.Spec {
			spec, _, err := k8sclient.LookupNamespacePolicy(context.Background(), clients.Dynamic, namespace)
			if err != nil {
				slog.Warn("admission: policy lookup failed, failing open", "namespace", namespace, "error", err)
				return nil
			}
			return spec
		},
	}

	server.SetReady(true)

	listenAddr := cfg.Webhook.ListenAddr
	if listenAddr == "" {
		listenAddr = ":8443"
	}

	httpServer := &http.Server{Addr: listenAddr, Handler: server.Handler()}
	go func() {
		slog.Info("admission webhook starting", "addr", listenAddr)
		err := httpServer.ListenAndServeTLS(cfg.Webhook.TLSCertPath, cfg.Webhook.TLSKeyPath)
		if err != nil && err != http.ErrServerClosed {
			slog.Error("admission webhook server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	slog.Info("admission webhook shutting down")
	return httpServer.Shutdown(shutdownCtx)
}

func runWebhookCertGenerate(cmd *cobra.Command, args []string) error {
	caKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return fmt.Errorf("failed to generate CA key: %w", err)
	}
	caTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "kube-devops-operator-ca"},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().AddDate(10, 0, 0),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	if err != nil {
		return fmt.Errorf("failed to create CA certificate: %w", err)
	}
	caCert, err := x509.ParseCertificate(caDER)
	if err != nil {
		return fmt.Errorf("failed to parse CA certificate: %w", err)
	}

	serverKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return fmt.Errorf("failed to generate server key: %w", err)
	}
	serverTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: webhookCertDNS},
		DNSNames:     []string{webhookCertDNS},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().AddDate(1, 0, 0),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	serverDER, err := x509.CreateCertificate(rand.Reader, serverTemplate, caCert, &serverKey.PublicKey, caKey)
	if err != nil {
		return fmt.Errorf("failed to create server certificate: %w", err)
	}

	certOut, err := os.Create(webhookCertOut)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", webhookCertOut, err)
	}
	defer certOut.Close()
	if err := pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: serverDER}); err != nil {
		return fmt.Errorf("failed to write certificate: %w", err)
	}

	keyOut, err := os.OpenFile(webhookKeyOut, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", webhookKeyOut, err)
	}
	defer keyOut.Close()
	if err := pem.Encode(keyOut, &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(serverKey)}); err != nil {
		return fmt.Errorf("failed to write key: %w", err)
	}

	slog.Info("generated self-signed webhook certificate", "cert", webhookCertOut, "key", webhookKeyOut, "dnsName", webhookCertDNS)

	// verify the pair loads before reporting success
	if _, err := tls.LoadX509KeyPair(webhookCertOut, webhookKeyOut); err != nil {
		return fmt.Errorf("generated certificate pair failed to load: %w", err)
	}
	return nil
}

func runWebhookInstallConfig(cmd *cobra.Command, args []string) error {
	manifest := `apiVersion: admissionregistration.k8s.io/v1
kind: ValidatingWebhookConfiguration
metadata:
  name: kube-devops-operator
webhooks:
  - name: validate.devops.stochastic.io
    admissionReviewVersions: ["v1"]
    sideEffects: None
    failurePolicy: Ignore
    clientConfig:
      service:
        name: kube-devops-operator-webhook
        namespace: devops-system
        path: /validate
      caBundle: <base64-encoded-ca-bundle>
    rules:
      - apiGroups: [""]
        apiVersions: ["v1"]
        operations: ["CREATE", "UPDATE"]
        resources: ["pods"]
    namespaceSelector:
      matchExpressions:
        - key: kubernetes.io/metadata.name
          operator: NotIn
          values: ["kube-system", "kube-public", "kube-node-lease"]
`
	fmt.Print(manifest)
	return nil
}
