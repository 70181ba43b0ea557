package ntpal

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/AndrewLester/sntp/pkg/ntp"
	"github.com/pkg/errors"
)

// ServerConfig is one "server" line of an ntp.conf style file:
//
//	server <host> [port N] [timeout MS] [bind N] [ttl N] [version 4] [strict]
type ServerConfig struct {
	Host      string
	Port      int
	Timeout   time.Duration
	LocalPort int
	TTL       int
	Strict    bool
}

// Options returns client options for the settings given on the line.
func (s ServerConfig) Options() []Option {
	opts := []Option{WithVerifyOriginate(s.Strict)}
	if s.Port != 0 {
		opts = append(opts, WithPort(s.Port))
	}
	if s.Timeout != 0 {
		opts = append(opts, WithTimeout(s.Timeout))
	}
	if s.LocalPort != 0 {
		opts = append(opts, WithLocalPort(s.LocalPort))
	}
	if s.TTL != 0 {
		opts = append(opts, WithTTL(s.TTL))
	}
	return opts
}

func ReadConfig(path string) ([]ServerConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading config")
	}
	defer file.Close()

	servers, err := ParseConfig(file)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return servers, nil
}

func ParseConfig(r io.Reader) ([]ServerConfig, error) {
	servers := []ServerConfig{}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		arguments := strings.Fields(scanner.Text())
		if len(arguments) == 0 || strings.HasPrefix(arguments[0], "#") {
			continue
		}

		switch arguments[0] {
		case "server":
			server, err := parseServer(arguments)
			if err != nil {
				return nil, errors.Wrapf(err, "config line %d", lineNo)
			}
			servers = append(servers, server)
		default:
			return nil, errors.Errorf("config line %d: invalid command %q", lineNo, arguments[0])
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return servers, nil
}

func parseServer(arguments []string) (ServerConfig, error) {
	if len(arguments) < 2 {
		return ServerConfig{}, errors.New("missing required argument \"address\"")
	}
	server := ServerConfig{Host: arguments[1]}
	arguments = arguments[2:]

	var err error
	server.Strict = optionalArgument("strict", &arguments)
	if server.Port, err = integerArgument("port", ntp.Port, &arguments); err != nil {
		return server, err
	}
	timeout, err := integerArgument("timeout", int(DefaultTimeout/time.Millisecond), &arguments)
	if err != nil {
		return server, err
	}
	server.Timeout = time.Duration(timeout) * time.Millisecond
	if server.LocalPort, err = integerArgument("bind", 0, &arguments); err != nil {
		return server, err
	}
	if server.TTL, err = integerArgument("ttl", 0, &arguments); err != nil {
		return server, err
	}
	version, err := integerArgument("version", int(ntp.VERSION), &arguments)
	if err != nil {
		return server, err
	}

	if len(arguments) > 0 {
		return server, errors.Errorf("invalid argument %q", arguments[0])
	}
	if version != int(ntp.VERSION) {
		return server, errors.Errorf("only NTP version %d is supported", ntp.VERSION)
	}
	if server.Port < 1 || server.Port > 65535 {
		return server, errors.Errorf("port %d out of range", server.Port)
	}
	if server.LocalPort < 0 || server.LocalPort > 65535 {
		return server, errors.Errorf("bind port %d out of range", server.LocalPort)
	}
	if server.Timeout <= 0 {
		return server, errors.New("timeout must be positive")
	}
	if server.TTL < 0 || server.TTL > 255 {
		return server, errors.Errorf("ttl %d out of range", server.TTL)
	}

	return server, nil
}

func optionalArgument(name string, arguments *[]string) bool {
	for i, argument := range *arguments {
		if name == argument {
			RemoveIndex(arguments, i)
			return true
		}
	}
	return false
}

func integerArgument(name string, initial int, arguments *[]string) (int, error) {
	valueStr, err := stringArgument(name, strconv.Itoa(initial), arguments)
	if err != nil {
		return 0, err
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.Errorf("%s argument requires an integer value", name)
	}
	return value, nil
}

func stringArgument(name string, initial string, arguments *[]string) (string, error) {
	for i, argument := range *arguments {
		if name == argument {
			if i == len(*arguments)-1 {
				return "", errors.Errorf("no value supplied for argument: %s", argument)
			}

			value := (*arguments)[i+1]
			RemoveIndex(arguments, i+1)
			RemoveIndex(arguments, i)
			return value, nil
		}
	}
	return initial, nil
}

func RemoveIndex[T any](s *[]T, index int) {
	ret := make([]T, 0, len(*s)-1)
	ret = append(ret, (*s)[:index]...)
	ret = append(ret, (*s)[index+1:]...)
	*s = ret
}
