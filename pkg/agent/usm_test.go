/*
 * Copyright 2026 Coldfell Systems.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package agent

import (
	"net"
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldfell/hwagent/pkg/config"
)

func v3Config() *config.SNMPConfig {
	return &config.SNMPConfig{
		ListenAddr:     "127.0.0.1:0",
		Community:      testCommunity,
		MaxRepetitions: 50,
		V3Username:     "monitor",
		V3AuthProtocol: "SHA",
		V3AuthKey:      "authpass12345",
		V3PrivProtocol: "AES",
		V3PrivKey:      "privpass12345",
	}
}

func v3Client(t *testing.T, srv *Server, authKey string) *gosnmp.GoSNMP {
	t.Helper()

	addr := srv.Addr().(*net.UDPAddr)

	client := &gosnmp.GoSNMP{
		Target:        "127.0.0.1",
		Port:          uint16(addr.Port),
		Version:       gosnmp.Version3,
		SecurityModel: gosnmp.UserSecurityModel,
		MsgFlags:      gosnmp.AuthPriv,
		Timeout:       2 * time.Second,
		Retries:       0,
		SecurityParameters: &gosnmp.UsmSecurityParameters{
			UserName:                 "monitor",
			AuthenticationProtocol:   gosnmp.SHA,
			AuthenticationPassphrase: authKey,
			PrivacyProtocol:          gosnmp.AES,
			PrivacyPassphrase:        "privpass12345",
		},
	}

	require.NoError(t, client.Connect())
	t.Cleanup(func() { client.Conn.Close() })

	return client
}

func TestServerV3Get(t *testing.T) {
	srv := startTestServer(t, v3Config())
	client := v3Client(t, srv, "authpass12345")

	result, err := client.Get([]string{".1.3.6.1.4.1.99999.1.1.1.0"})
	require.NoError(t, err)
	require.Len(t, result.Variables, 1)
	assert.Equal(t, "9.9.9", pduText(result.Variables[0]))
}

func TestServerV3WrongAuthKey(t *testing.T) {
	srv := startTestServer(t, v3Config())
	client := v3Client(t, srv, "not-the-key00")

	_, err := client.Get([]string{".1.3.6.1.4.1.99999.1.1.1.0"})
	assert.Error(t, err)
}

func TestServerV3DisabledDropsRequests(t *testing.T) {
	srv := startTestServer(t, v2cConfig())
	client := v3Client(t, srv, "authpass12345")

	_, err := client.Get([]string{".1.3.6.1.4.1.99999.1.1.1.0"})
	assert.Error(t, err, "v3 requests are dropped when no v3 user is configured")
}
