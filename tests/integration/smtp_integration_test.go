//go:build integration

package integration

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mailsense/mailsense-backend/internal/metrics"
	"github.com/mailsense/mailsense-backend/internal/models"
	"github.com/mailsense/mailsense-backend/internal/repository"
	"github.com/mailsense/mailsense-backend/internal/services"
	smtpserver "github.com/mailsense/mailsense-backend/internal/smtp"
	"github.com/mailsense/mailsense-backend/internal/storage"
)

// SMTPIntegrationTestSuite tests SMTP ingestion with real database
type SMTPIntegrationTestSuite struct {
	suite.Suite
	container   testcontainers.Container
	db          *gorm.DB
	smtpServer  *gosmtp.Server
	smtpAddr    string
	queue       *services.EnrichmentQueue
	accountRepo repository.AccountRepository
	emailRepo   repository.EmailRepository
}

// SetupSuite starts PostgreSQL container and SMTP server
func (s *SMTPIntegrationTestSuite) SetupSuite() {
	ctx := context.Background()

	// Start PostgreSQL container
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "mailsense_smtp_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(s.T(), err)
	s.container = container

	// Get connection details
	host, err := container.Host(ctx)
	require.NoError(s.T(), err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(s.T(), err)

	dsn := fmt.Sprintf("host=%s port=%s user=test password=test dbname=mailsense_smtp_test sslmode=disable",
		host, port.Port())

	// Connect to database
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(s.T(), err)
	s.db = db

	// Run migrations
	err = db.AutoMigrate(&models.MailboxAccount{}, &models.Category{}, &models.Email{})
	require.NoError(s.T(), err)

	// Initialize repositories
	s.accountRepo = repository.NewAccountRepository(db)
	s.emailRepo = repository.NewEmailRepository(db)

	// Raw message archive on disk
	rawStore, err := storage.NewLocalRawStore(s.T().TempDir())
	require.NoError(s.T(), err)

	// Enrichment pipeline on a canned analyzer
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewMetrics(prometheus.NewRegistry())
	analyzer := &fixedAnalyzer{}
	broadcaster := services.NewStatusBroadcaster(nil, m, log)
	s.queue = services.NewEnrichmentQueue(services.EnrichmentQueueConfig{
		BatchSize: 10,
		ChunkSize: 5,
	}, analyzer, s.emailRepo, broadcaster, m, log)
	enricher := services.NewEnrichmentService(s.emailRepo, analyzer, s.queue, broadcaster, log)

	// Pick a free port for the SMTP listener
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(s.T(), err)
	s.smtpAddr = listener.Addr().String()
	listener.Close()

	backend := smtpserver.NewBackend(&smtpserver.BackendConfig{
		AccountRepo: s.accountRepo,
		EmailRepo:   s.emailRepo,
		RawStore:    rawStore,
		Enricher:    enricher,
		Logger:      log,
	})
	s.smtpServer = smtpserver.NewSecureServer(backend, &smtpserver.ServerConfig{
		Addr:   s.smtpAddr,
		Domain: "mail.test",
	})

	// Start SMTP server in background
	go func() {
		s.smtpServer.ListenAndServe()
	}()

	// Wait for server to start
	time.Sleep(100 * time.Millisecond)
}

// TearDownSuite stops SMTP server and PostgreSQL container
func (s *SMTPIntegrationTestSuite) TearDownSuite() {
	if s.smtpServer != nil {
		s.smtpServer.Close()
	}
	if s.queue != nil {
		s.queue.Stop()
	}
	if s.container != nil {
		s.container.Terminate(context.Background())
	}
}

// SetupTest cleans up data before each test
func (s *SMTPIntegrationTestSuite) SetupTest() {
	s.queue.Wait()
	s.db.Exec("TRUNCATE TABLE emails, mailbox_accounts RESTART IDENTITY CASCADE")
}

// TestSMTPIntegrationTestSuite runs the test suite
func TestSMTPIntegrationTestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	suite.Run(t, new(SMTPIntegrationTestSuite))
}

func (s *SMTPIntegrationTestSuite) registerAccount(owner, address string, active bool) {
	account := &models.MailboxAccount{
		OwnerUserID: owner,
		Address:     address,
		Provider:    "smtp",
		IsActive:    active,
	}
	require.NoError(s.T(), s.accountRepo.Create(context.Background(), account))
}

// Helper function to connect to SMTP server
func (s *SMTPIntegrationTestSuite) connectSMTP() (net.Conn, *bufio.Reader, error) {
	conn, err := net.DialTimeout("tcp", s.smtpAddr, 5*time.Second)
	if err != nil {
		return nil, nil, err
	}
	reader := bufio.NewReader(conn)
	return conn, reader, nil
}

// Helper function to read SMTP response
func readResponse(reader *bufio.Reader) (string, error) {
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Helper function to send SMTP command
func sendCommand(conn net.Conn, cmd string) error {
	_, err := conn.Write([]byte(cmd + "\r\n"))
	return err
}

// handshake reads the banner and completes EHLO and MAIL FROM
func (s *SMTPIntegrationTestSuite) handshake(conn net.Conn, reader *bufio.Reader) {
	_, err := readResponse(reader)
	require.NoError(s.T(), err)

	require.NoError(s.T(), sendCommand(conn, "EHLO localhost"))
	for {
		line, err := readResponse(reader)
		require.NoError(s.T(), err)
		if strings.HasPrefix(line, "250 ") || !strings.HasPrefix(line, "250") {
			break
		}
	}

	require.NoError(s.T(), sendCommand(conn, "MAIL FROM:<sender@external.com>"))
	response, err := readResponse(reader)
	require.NoError(s.T(), err)
	require.True(s.T(), strings.HasPrefix(response, "250"))
}

// sendData pipes a message body through the DATA command
func (s *SMTPIntegrationTestSuite) sendData(conn net.Conn, reader *bufio.Reader, lines []string) string {
	require.NoError(s.T(), sendCommand(conn, "DATA"))
	response, err := readResponse(reader)
	require.NoError(s.T(), err)
	require.True(s.T(), strings.HasPrefix(response, "354"))

	payload := strings.Join(lines, "\r\n") + "\r\n.\r\n"
	_, err = conn.Write([]byte(payload))
	require.NoError(s.T(), err)

	response, err = readResponse(reader)
	require.NoError(s.T(), err)
	return response
}

// ==================== Connection Tests ====================

func (s *SMTPIntegrationTestSuite) TestSMTP_AcceptsConnection() {
	conn, reader, err := s.connectSMTP()
	require.NoError(s.T(), err)
	defer conn.Close()

	// Read banner
	response, err := readResponse(reader)
	require.NoError(s.T(), err)

	assert.True(s.T(), strings.HasPrefix(response, "220"))
	assert.Contains(s.T(), response, "ESMTP")
}

func (s *SMTPIntegrationTestSuite) TestSMTP_EHLO() {
	conn, reader, err := s.connectSMTP()
	require.NoError(s.T(), err)
	defer conn.Close()

	_, err = readResponse(reader)
	require.NoError(s.T(), err)

	err = sendCommand(conn, "EHLO localhost")
	require.NoError(s.T(), err)

	response, err := readResponse(reader)
	require.NoError(s.T(), err)

	assert.True(s.T(), strings.HasPrefix(response, "250"))
}

// ==================== RCPT TO Tests ====================

func (s *SMTPIntegrationTestSuite) TestSMTP_RCPT_KnownAccount() {
	s.registerAccount("alice", "inbox@rcpt-known.test", true)

	conn, reader, err := s.connectSMTP()
	require.NoError(s.T(), err)
	defer conn.Close()

	s.handshake(conn, reader)

	require.NoError(s.T(), sendCommand(conn, "RCPT TO:<inbox@rcpt-known.test>"))
	response, err := readResponse(reader)
	require.NoError(s.T(), err)

	assert.True(s.T(), strings.HasPrefix(response, "250"))
}

func (s *SMTPIntegrationTestSuite) TestSMTP_RCPT_UnknownAccount() {
	conn, reader, err := s.connectSMTP()
	require.NoError(s.T(), err)
	defer conn.Close()

	s.handshake(conn, reader)

	require.NoError(s.T(), sendCommand(conn, "RCPT TO:<nobody@rcpt-unknown.test>"))
	response, err := readResponse(reader)
	require.NoError(s.T(), err)

	// Unknown recipients are rejected
	assert.True(s.T(), strings.HasPrefix(response, "550"))
}

func (s *SMTPIntegrationTestSuite) TestSMTP_RCPT_InactiveAccount() {
	s.registerAccount("alice", "paused@rcpt-inactive.test", false)

	conn, reader, err := s.connectSMTP()
	require.NoError(s.T(), err)
	defer conn.Close()

	s.handshake(conn, reader)

	require.NoError(s.T(), sendCommand(conn, "RCPT TO:<paused@rcpt-inactive.test>"))
	response, err := readResponse(reader)
	require.NoError(s.T(), err)

	assert.True(s.T(), strings.HasPrefix(response, "550"))
}

// ==================== Email Delivery Tests ====================

func (s *SMTPIntegrationTestSuite) TestSMTP_DeliverEmail() {
	ctx := context.Background()
	s.registerAccount("alice", "inbox@delivery.test", true)

	conn, reader, err := s.connectSMTP()
	require.NoError(s.T(), err)
	defer conn.Close()

	s.handshake(conn, reader)

	require.NoError(s.T(), sendCommand(conn, "RCPT TO:<inbox@delivery.test>"))
	_, err = readResponse(reader)
	require.NoError(s.T(), err)

	response := s.sendData(conn, reader, []string{
		"From: Remote Sender <sender@external.com>",
		"To: inbox@delivery.test",
		"Subject: Delivery Test",
		"Message-ID: <delivery-1@external.com>",
		"",
		"This is a delivery test body.",
	})
	assert.True(s.T(), strings.HasPrefix(response, "250"))

	require.NoError(s.T(), sendCommand(conn, "QUIT"))

	// Wait for the enrichment drain to settle
	time.Sleep(100 * time.Millisecond)
	s.queue.Wait()

	// Verify the email was stored under its provider identity
	email, err := s.emailRepo.GetByIdentity(ctx, "inbox@delivery.test", "delivery-1@external.com")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "alice", email.OwnerUserID)
	assert.Equal(s.T(), "Delivery Test", email.Subject)
	assert.Equal(s.T(), "sender@external.com", email.SenderEmail)

	// The canned analyzer enriched it
	assert.True(s.T(), email.IsProcessed)
	require.NotNil(s.T(), email.AIMeta)
	assert.Equal(s.T(), "Work", email.AIMeta.Category)
}

func (s *SMTPIntegrationTestSuite) TestSMTP_RedeliveryDoesNotDuplicate() {
	ctx := context.Background()
	s.registerAccount("alice", "inbox@redelivery.test", true)

	for i := 0; i < 2; i++ {
		conn, reader, err := s.connectSMTP()
		require.NoError(s.T(), err)

		s.handshake(conn, reader)

		require.NoError(s.T(), sendCommand(conn, "RCPT TO:<inbox@redelivery.test>"))
		_, err = readResponse(reader)
		require.NoError(s.T(), err)

		response := s.sendData(conn, reader, []string{
			"From: sender@external.com",
			"To: inbox@redelivery.test",
			"Subject: Redelivered",
			"Message-ID: <stable-id@external.com>",
			"",
			"Same message twice.",
		})
		require.True(s.T(), strings.HasPrefix(response, "250"))

		sendCommand(conn, "QUIT")
		conn.Close()
	}

	time.Sleep(100 * time.Millisecond)
	s.queue.Wait()

	_, total, err := s.emailRepo.ListByOwner(ctx, "alice", 10, 0)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), int64(1), total)
}

// ==================== Multiple Recipients Tests ====================

func (s *SMTPIntegrationTestSuite) TestSMTP_MultipleRecipients() {
	ctx := context.Background()
	s.registerAccount("alice", "alice@multi.test", true)
	s.registerAccount("bob", "bob@multi.test", true)

	conn, reader, err := s.connectSMTP()
	require.NoError(s.T(), err)
	defer conn.Close()

	s.handshake(conn, reader)

	require.NoError(s.T(), sendCommand(conn, "RCPT TO:<alice@multi.test>"))
	response, err := readResponse(reader)
	require.NoError(s.T(), err)
	assert.True(s.T(), strings.HasPrefix(response, "250"))

	require.NoError(s.T(), sendCommand(conn, "RCPT TO:<bob@multi.test>"))
	response, err = readResponse(reader)
	require.NoError(s.T(), err)
	assert.True(s.T(), strings.HasPrefix(response, "250"))

	response = s.sendData(conn, reader, []string{
		"From: sender@external.com",
		"To: alice@multi.test, bob@multi.test",
		"Subject: Multi Recipient Test",
		"Message-ID: <multi-1@external.com>",
		"",
		"Test body.",
	})
	assert.True(s.T(), strings.HasPrefix(response, "250"))

	require.NoError(s.T(), sendCommand(conn, "QUIT"))

	time.Sleep(100 * time.Millisecond)
	s.queue.Wait()

	// Each recipient gets its own stored copy
	aliceCopy, err := s.emailRepo.GetByIdentity(ctx, "alice@multi.test", "multi-1@external.com")
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), "alice", aliceCopy.OwnerUserID)

	bobCopy, err := s.emailRepo.GetByIdentity(ctx, "bob@multi.test", "multi-1@external.com")
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), "bob", bobCopy.OwnerUserID)
}
