package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/akamensky/argparse"
	"github.com/coreos/go-systemd/daemon"
	"github.com/cyclopcam/logs"
	"github.com/fillsight/fillsight/pkg/nnload"
	"github.com/fillsight/fillsight/server"
	"github.com/fillsight/fillsight/server/configdb"
	"github.com/fillsight/fillsight/server/filestore"
	"github.com/fillsight/fillsight/server/pipeline"
	"github.com/fillsight/fillsight/server/resultdb"
)

func main() {
	nominalDefaultRoot := "$HOME/fillsight"

	parser := argparse.NewParser("fillsight", "Vial and syringe counting server")
	dataRoot := parser.String("d", "data", &argparse.Options{Help: "Data directory (databases and stored images)", Default: nominalDefaultRoot})
	modelsDir := parser.String("m", "models", &argparse.Options{Help: "Directory containing the .onnx models and their .json configs", Default: "models"})
	port := parser.String("p", "port", &argparse.Options{Help: "HTTP listen address", Default: ":8080"})
	ortLib := parser.String("", "ort", &argparse.Options{Help: "Path to the ONNX Runtime shared library", Default: ""})
	createAdmin := parser.String("", "create-admin", &argparse.Options{Help: "Create an admin user with this email, print the generated password, and exit", Default: ""})
	createOperator := parser.String("", "create-operator", &argparse.Options{Help: "Create an operator user with this email, print the generated password, and exit", Default: ""})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	root := *dataRoot
	if root == nominalDefaultRoot {
		home, _ := os.UserHomeDir()
		if home == "" {
			home = "/var/lib"
		}
		root = filepath.Join(home, "fillsight")
	}
	if err := os.MkdirAll(root, 0770); err != nil {
		logger.Errorf("Failed to create data directory '%v': %v", root, err)
		os.Exit(1)
	}

	configDB, err := configdb.NewConfigDB(logger, filepath.Join(root, "config.sqlite"))
	if err != nil {
		logger.Errorf("Failed to open config database: %v", err)
		os.Exit(1)
	}

	if *createAdmin != "" || *createOperator != "" {
		createUserAndExit(logger, configDB, *createAdmin, *createOperator)
		return
	}

	resultDB, err := resultdb.NewResultDB(logger, filepath.Join(root, "results.sqlite"))
	if err != nil {
		logger.Errorf("Failed to open result database: %v", err)
		os.Exit(1)
	}

	files, err := filestore.NewStore(logger, filepath.Join(root, "images"))
	if err != nil {
		logger.Errorf("Failed to open file store: %v", err)
		os.Exit(1)
	}

	cfg, err := configDB.GetConfig()
	if err != nil {
		logger.Errorf("Failed to read system config: %v", err)
		os.Exit(1)
	}

	if err := nnload.Initialize(*ortLib); err != nil {
		logger.Errorf("Failed to initialize inference runtime: %v", err)
		os.Exit(1)
	}
	vials, err := loadDetector(logger, *modelsDir, pipeline.ModelVials, pipeline.LabelVial, &cfg.Vials)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	defer vials.Detector.Close()
	pfs, err := loadDetector(logger, *modelsDir, pipeline.ModelPFS, pipeline.LabelPFS, &cfg.PFS)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	defer pfs.Detector.Close()

	srv := server.NewServer(logger, configDB, resultDB, files, vials, pfs)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-stop
		logger.Infof("Received signal %v, shutting down", sig)
		srv.Shutdown()
	}()

	daemon.SdNotify(false, daemon.SdNotifyReady)

	if err := srv.ListenHTTP(*port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorf("ListenHTTP returned: %v", err)
		os.Exit(1)
	}
	logger.Infof("Shutdown complete")
}

func loadDetector(logger logs.Log, modelsDir, name, label string, cfg *configdb.DetectorJSON) (*pipeline.DetectorConfig, error) {
	detector, err := nnload.LoadModel(logger, modelsDir, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("Failed to load %v model: %w", name, err)
	}
	return &pipeline.DetectorConfig{
		Name:                 name,
		Detector:             detector,
		ProbabilityThreshold: cfg.ProbabilityThreshold,
		NmsIouThreshold:      cfg.NmsIouThreshold,
		ClassLabels:          map[int]string{0: label},
	}, nil
}

// createUserAndExit seeds a first user. There are no built-in credentials,
// so a fresh install must create its admin this way.
func createUserAndExit(logger logs.Log, configDB *configdb.ConfigDB, adminEmail, operatorEmail string) {
	email := adminEmail
	permissions := configdb.UserPermissionAdmin
	if email == "" {
		email = operatorEmail
		permissions = configdb.UserPermissionOperator
	}
	password := configdb.GeneratePassword()
	user := configdb.User{
		Email:       email,
		Permissions: string(permissions),
		EmployeeID:  email,
	}
	if err := configDB.CreateUser(&user, password); err != nil {
		logger.Errorf("Failed to create user: %v", err)
		os.Exit(1)
	}
	fmt.Printf("Created user %v (id %v)\nPassword: %v\n", email, user.ID, password)
}
