/*
 * Copyright 2024 Axibase Corporation
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

/*
Package atsd is a client for the Axibase Time Series Database SQL and
command APIs.

# Client

Use NewClient to create a client. A Client is safe for concurrent use and
owns every statement created from it:

	client, err := atsd.NewClient(&atsd.Config{
		Endpoint: "https://<atsd-host>:8443",
		Login:    "user",
		Password: "secret",
	})
	if err != nil {
		return err
	}
	defer client.Close()

A Config can also come from a DSN or a YAML file, see ParseDSN and
LoadConfig.

# Query Data

A SELECT is sent to the SQL endpoint and its CSV result is kept by the
configured strategy (memory, file or stream). Rows are decoded using the
schema the store returns with the result:

	s := client.Statement(`SELECT entity, datetime, value FROM "mpstat.cpu_busy" LIMIT 10`)
	defer s.Close()
	rows, err := s.Query(ctx)
	if err != nil {
		return err
	}
	for {
		page, err := rows.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		...
	}

# Write Data

INSERT and UPDATE statements are converted to series, entity and metric
commands and sent to the command endpoint:

	s := client.Statement(`INSERT INTO temperature (entity, datetime, value, tags.unit) VALUES (?, ?, ?, ?)`)
	n, err := s.Exec(ctx, "sensor-01", time.Now(), 24.5, "Celsius")

Statement.Cancel stops a request that is still waiting for the store.
*/
package atsd
